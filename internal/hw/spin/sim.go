package spin

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/spinrec/internal/debug"
)

// SimCameraConfig describes one simulated camera.
type SimCameraConfig struct {
	Serial          string
	Model           string
	Width           int
	Height          int
	MaxExposureUs   float64
	IncompleteEvery int      // every Nth frame is flagged incomplete (0 = never)
	MissingNodes    []string // features absent from the device node map
	ReadOnlyNodes   []string // features present but never writable
}

// SimConfig configures the simulated runtime.
type SimConfig struct {
	Cameras []SimCameraConfig
	// ExternalTrigger makes Line0-triggered cameras behave as if a trigger
	// signal arrived for every frame request.
	ExternalTrigger bool
}

// SimSystem is an in-process runtime with simulated cameras.
type SimSystem struct {
	mu       sync.Mutex
	cameras  []*SimCamera
	external bool
	released bool
	listsOut int
}

// NewSimSystem creates a simulated runtime.
func NewSimSystem(cfg SimConfig) *SimSystem {
	debug.Info("Using SIMULATED camera runtime (%d cameras)", len(cfg.Cameras))
	s := &SimSystem{external: cfg.ExternalTrigger}
	for _, cc := range cfg.Cameras {
		s.cameras = append(s.cameras, newSimCamera(s, cc))
	}
	return s
}

func (s *SimSystem) LibraryVersion() Version {
	return Version{Major: 0, Minor: 0, Type: 0, Build: 1}
}

func (s *SimSystem) Cameras() (CameraList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, newError("GetCameras", CodeInvalidHandle, "system released")
	}
	s.listsOut++
	cams := make([]*SimCamera, len(s.cameras))
	copy(cams, s.cameras)
	return &simList{sys: s, cams: cams}, nil
}

// Release fails while a camera list obtained from the system is still
// holding references.
func (s *SimSystem) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return newError("ReleaseInstance", CodeInvalidHandle, "system already released")
	}
	if s.listsOut > 0 {
		return newError("ReleaseInstance", CodeResourceInUse, "%d camera list(s) not cleared", s.listsOut)
	}
	s.released = true
	return nil
}

// Released reports whether Release succeeded.
func (s *SimSystem) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Camera returns the simulated camera with the given serial, or nil.
func (s *SimSystem) Camera(serial string) *SimCamera {
	for _, c := range s.cameras {
		if c.cfg.Serial == serial {
			return c
		}
	}
	return nil
}

// Pulse simulates an edge on every camera's Line0 input. Cameras that are
// streaming with trigger mode on and source Line0 get one frame.
func (s *SimSystem) Pulse() error {
	for _, c := range s.cameras {
		c.mu.Lock()
		if c.acquiring && c.enums[NodeTriggerMode] == "On" && c.enums[NodeTriggerSource] == "Line0" {
			c.queueTrigger()
		}
		c.mu.Unlock()
	}
	debug.Trace("sim: Line0 pulse")
	return nil
}

type simList struct {
	sys     *SimSystem
	cams    []*SimCamera
	cleared bool
}

func (l *simList) Len() int { return len(l.cams) }

func (l *simList) At(i int) (Camera, error) {
	if i < 0 || i >= len(l.cams) {
		return nil, newError("GetByIndex", CodeInvalidParam, "index %d out of range", i)
	}
	return l.cams[i], nil
}

func (l *simList) Clear() error {
	if l.cleared {
		return nil
	}
	l.cleared = true
	l.cams = nil
	l.sys.mu.Lock()
	l.sys.listsOut--
	l.sys.mu.Unlock()
	return nil
}

// SimCamera is one simulated device. Its exported accessors let tests
// inspect what the application did to it.
type SimCamera struct {
	cfg SimCameraConfig
	sys *SimSystem

	mu          sync.Mutex
	initialized bool
	acquiring   bool
	enums       map[string]string
	exposure    float64
	triggers    chan struct{}
	seq         int
	inFlight    int
	maxInFlight int
	calls       map[string]int
	writes      []string
	injected    map[string]error
	panics      map[string]interface{}

	nodes   map[string]Node
	tlNodes map[string]Node
}

var simEnumEntries = map[string][]string{
	NodeAcquisitionMode: {"Continuous", "SingleFrame", "MultiFrame"},
	NodeTriggerMode:     {"Off", "On"},
	NodeTriggerSelector: {"FrameStart", "AcquisitionStart", "FrameBurstStart"},
	NodeTriggerSource:   {"Software", "Line0", "Line1", "Line2", "Line3"},
	NodeExposureAuto:    {"Off", "Once", "Continuous"},
}

const simMinExposureUs = 6

func newSimCamera(s *SimSystem, cfg SimCameraConfig) *SimCamera {
	if cfg.Width <= 0 {
		cfg.Width = 320
	}
	if cfg.Height <= 0 {
		cfg.Height = 240
	}
	if cfg.MaxExposureUs <= 0 {
		cfg.MaxExposureUs = 30000000
	}
	c := &SimCamera{
		cfg: cfg,
		sys: s,
		enums: map[string]string{
			NodeAcquisitionMode: "SingleFrame",
			NodeTriggerMode:     "Off",
			NodeTriggerSelector: "FrameStart",
			NodeTriggerSource:   "Software",
			NodeExposureAuto:    "Continuous",
		},
		exposure: min(10000, cfg.MaxExposureUs),
		triggers: make(chan struct{}, 16),
		calls:    make(map[string]int),
		injected: make(map[string]error),
		panics:   make(map[string]interface{}),
		nodes:    make(map[string]Node),
		tlNodes:  make(map[string]Node),
	}

	missing := make(map[string]bool)
	for _, n := range cfg.MissingNodes {
		missing[n] = true
	}
	readOnly := make(map[string]bool)
	for _, n := range cfg.ReadOnlyNodes {
		readOnly[n] = true
	}
	base := func(name string, kind NodeKind, tl bool) simBase {
		return simBase{cam: c, name: name, kind: kind, tl: tl, readOnly: readOnly[name]}
	}
	add := func(n Node) {
		if !missing[n.Name()] {
			c.nodes[n.Name()] = n
		}
	}
	for name, entries := range simEnumEntries {
		add(&simEnum{simBase: base(name, KindEnumeration, false), entries: entries})
	}
	add(&simFloat{simBase: base(NodeExposureTime, KindFloat, false)})
	add(&simCommand{simBase: base(NodeTriggerSoftware, KindCommand, false)})

	model := cfg.Model
	if model == "" {
		model = "Simulated Camera"
	}
	strs := []*simString{
		{simBase: base(NodeDeviceSerialNumber, KindString, true), text: cfg.Serial},
		{simBase: base(NodeDeviceModelName, KindString, true), text: model},
		{simBase: base(NodeDeviceVendorName, KindString, true), text: "FLIR"},
	}
	info := &simCategory{simBase: base(NodeDeviceInformation, KindCategory, true)}
	for _, n := range strs {
		if missing[n.name] {
			continue
		}
		c.tlNodes[n.name] = n
		info.features = append(info.features, n)
	}
	if !missing[NodeDeviceInformation] {
		c.tlNodes[NodeDeviceInformation] = info
	}
	return c
}

// Inject makes every later call to op ("Init", "BeginAcquisition",
// "NextImage", ...) fail with err. A nil err clears the injection.
func (c *SimCamera) Inject(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.injected, op)
		return
	}
	c.injected[op] = err
}

// InjectPanic makes every later call to op panic with v.
func (c *SimCamera) InjectPanic(op string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panics[op] = v
}

// enter counts a call to op and returns the injected failure, if any.
// Caller holds c.mu.
func (c *SimCamera) enter(op string) error {
	c.calls[op]++
	return c.injected[op]
}

func (c *SimCamera) maybePanic(op string) {
	c.mu.Lock()
	v, ok := c.panics[op]
	c.mu.Unlock()
	if ok {
		panic(v)
	}
}

// Serial returns the configured serial number.
func (c *SimCamera) Serial() string { return c.cfg.Serial }

// Calls returns how many times op was invoked.
func (c *SimCamera) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Writes returns the node writes in order, formatted as "Node=Value".
func (c *SimCamera) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	copy(out, c.writes)
	return out
}

// Enum returns the current entry of an enumeration node.
func (c *SimCamera) Enum(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enums[name]
}

// Exposure returns the current exposure time in microseconds.
func (c *SimCamera) Exposure() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure
}

// MaxInFlight returns the highest number of unreleased frames seen at once.
func (c *SimCamera) MaxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

// InFlight returns the number of frames not yet released.
func (c *SimCamera) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Initialized reports whether the camera is initialized.
func (c *SimCamera) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Acquiring reports whether the camera is streaming.
func (c *SimCamera) Acquiring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquiring
}

func (c *SimCamera) Init() error {
	c.maybePanic("Init")
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Init"); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *SimCamera) DeInit() error {
	c.maybePanic("DeInit")
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeInit"); err != nil {
		return err
	}
	if c.acquiring {
		return newError("DeInit", CodeResourceInUse, "acquisition still running")
	}
	c.initialized = false
	return nil
}

func (c *SimCamera) IsInitialized() bool { return c.Initialized() }

func (c *SimCamera) NodeMap() NodeMap { return simNodeMap(c.nodes) }

func (c *SimCamera) TLDeviceNodeMap() NodeMap { return simNodeMap(c.tlNodes) }

func (c *SimCamera) BeginAcquisition() error {
	c.maybePanic("BeginAcquisition")
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("BeginAcquisition"); err != nil {
		return err
	}
	if !c.initialized {
		return newError("BeginAcquisition", CodeNotInitialized, "camera not initialized")
	}
	if c.acquiring {
		return newError("BeginAcquisition", CodeResourceInUse, "acquisition already running")
	}
	for len(c.triggers) > 0 {
		<-c.triggers
	}
	c.acquiring = true
	return nil
}

func (c *SimCamera) EndAcquisition() error {
	c.maybePanic("EndAcquisition")
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("EndAcquisition"); err != nil {
		return err
	}
	if !c.acquiring {
		return newError("EndAcquisition", CodeNotAvailable, "acquisition not started")
	}
	c.acquiring = false
	return nil
}

func (c *SimCamera) NextImage(timeout time.Duration) (Image, error) {
	c.maybePanic("NextImage")
	c.mu.Lock()
	if err := c.enter("NextImage"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if !c.acquiring {
		c.mu.Unlock()
		return nil, newError("GetNextImage", CodeNotAvailable, "stream not started")
	}
	gated := c.enums[NodeTriggerMode] == "On"
	external := c.sys.external && c.enums[NodeTriggerSource] == "Line0"
	triggers := c.triggers
	c.mu.Unlock()

	if gated && !external {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-triggers:
		case <-timer.C:
			return nil, newError("GetNextImage", CodeTimeout, "no image within %v", timeout)
		}
	}
	return c.frame(), nil
}

// queueTrigger records one pending frame-start signal. Caller holds c.mu.
func (c *SimCamera) queueTrigger() {
	select {
	case c.triggers <- struct{}{}:
	default:
	}
}

func (c *SimCamera) frame() *simImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	w, h := c.cfg.Width, c.cfg.Height
	pix := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = uint16((x + y + c.seq*8) * 256)
		}
	}
	img := &simImage{cam: c, width: w, height: h, format: PixelFormatMono16, mono16: pix, owned: true, status: ImageNoError}
	if c.cfg.IncompleteEvery > 0 && c.seq%c.cfg.IncompleteEvery == 0 {
		img.incomplete = true
		img.status = ImageMissingPacket
	}
	return img
}

type simImage struct {
	cam        *SimCamera
	width      int
	height     int
	format     PixelFormat
	mono16     []uint16
	mono8      []byte
	incomplete bool
	status     ImageStatus
	owned      bool // counts toward the camera's in-flight frames
	released   bool
}

func (i *simImage) Incomplete() bool         { return i.incomplete }
func (i *simImage) Status() ImageStatus      { return i.status }
func (i *simImage) Width() int               { return i.width }
func (i *simImage) Height() int              { return i.height }
func (i *simImage) PixelFormat() PixelFormat { return i.format }

func (i *simImage) Convert(format PixelFormat) (Image, error) {
	if i.released {
		return nil, newError("Convert", CodeInvalidHandle, "image released")
	}
	if format != PixelFormatMono8 {
		return nil, newError("Convert", CodeInvalidParam, "cannot convert %s to %s", i.format, format)
	}
	out := &simImage{cam: i.cam, width: i.width, height: i.height, format: PixelFormatMono8, status: i.status}
	switch i.format {
	case PixelFormatMono8:
		out.mono8 = append([]byte(nil), i.mono8...)
	case PixelFormatMono16:
		out.mono8 = make([]byte, len(i.mono16))
		for k, v := range i.mono16 {
			out.mono8[k] = byte(v >> 8)
		}
	default:
		return nil, newError("Convert", CodeInvalidParam, "cannot convert %s", i.format)
	}
	return out, nil
}

func (i *simImage) Save(path string) error {
	if i.released {
		return newError("Save", CodeInvalidHandle, "image released")
	}
	if i.format != PixelFormatMono8 {
		return newError("Save", CodeInvalidParam, "cannot encode %s", i.format)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".jpg" && ext != ".jpeg" {
		return newError("Save", CodeInvalidParam, "unsupported file extension %q", ext)
	}
	i.cam.mu.Lock()
	err := i.cam.enter("Save")
	i.cam.mu.Unlock()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return newError("Save", CodeIO, "%v", err)
	}
	img := &image.Gray{Pix: i.mono8, Stride: i.width, Rect: image.Rect(0, 0, i.width, i.height)}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return newError("Save", CodeIO, "%v", err)
	}
	if err := f.Close(); err != nil {
		return newError("Save", CodeIO, "%v", err)
	}
	return nil
}

func (i *simImage) Release() error {
	if i.released {
		return newError("Release", CodeInvalidHandle, "image already released")
	}
	i.released = true
	if i.owned {
		i.cam.mu.Lock()
		i.cam.inFlight--
		i.cam.mu.Unlock()
	}
	return nil
}

type simNodeMap map[string]Node

func (m simNodeMap) Node(name string) Node {
	n, ok := m[name]
	if !ok {
		return nil
	}
	return n
}

type simBase struct {
	cam      *SimCamera
	name     string
	kind     NodeKind
	tl       bool // transport layer nodes are readable before Init
	readOnly bool
}

func (b *simBase) Name() string   { return b.name }
func (b *simBase) Kind() NodeKind { return b.kind }

func (b *simBase) IsAvailable() bool {
	if b.tl {
		return true
	}
	b.cam.mu.Lock()
	defer b.cam.mu.Unlock()
	return b.cam.initialized
}

func (b *simBase) IsReadable() bool { return b.IsAvailable() }

func (b *simBase) IsWritable() bool {
	if b.tl || b.readOnly {
		return false
	}
	b.cam.mu.Lock()
	defer b.cam.mu.Unlock()
	return b.writableLocked()
}

// writableLocked applies the device's access rules. Caller holds cam.mu.
func (b *simBase) writableLocked() bool {
	c := b.cam
	if !c.initialized || b.tl || b.readOnly {
		return false
	}
	switch b.name {
	case NodeTriggerSource, NodeTriggerSelector:
		return c.enums[NodeTriggerMode] == "Off"
	case NodeExposureTime:
		return c.enums[NodeExposureAuto] == "Off"
	case NodeTriggerSoftware:
		return c.enums[NodeTriggerMode] == "On" && c.enums[NodeTriggerSource] == "Software"
	case NodeAcquisitionMode:
		return !c.acquiring
	}
	return true
}

type simEnum struct {
	simBase
	entries []string
}

func (e *simEnum) ToString() (string, error) {
	e.cam.mu.Lock()
	defer e.cam.mu.Unlock()
	return e.cam.enums[e.name], nil
}

func (e *simEnum) EntryByName(name string) EnumEntry {
	for k, v := range e.entries {
		if v == name {
			return &simEntry{simBase: simBase{cam: e.cam, name: v, kind: KindEnumEntry}, value: int64(k)}
		}
	}
	return nil
}

func (e *simEnum) IntValue() (int64, error) {
	e.cam.mu.Lock()
	defer e.cam.mu.Unlock()
	cur := e.cam.enums[e.name]
	for k, v := range e.entries {
		if v == cur {
			return int64(k), nil
		}
	}
	return -1, newError("GetIntValue", CodeInvalidValue, "%s has no current entry", e.name)
}

func (e *simEnum) SetIntValue(v int64) error {
	e.cam.mu.Lock()
	defer e.cam.mu.Unlock()
	if e.readOnly || !e.writableLocked() {
		return newError("SetIntValue", CodeAccess, "%s is not writable", e.name)
	}
	if v < 0 || v >= int64(len(e.entries)) {
		return newError("SetIntValue", CodeOutOfRange, "%s has no entry %d", e.name, v)
	}
	e.cam.enums[e.name] = e.entries[v]
	e.cam.writes = append(e.cam.writes, e.name+"="+e.entries[v])
	return nil
}

type simEntry struct {
	simBase
	value int64
}

func (e *simEntry) IsWritable() bool          { return false }
func (e *simEntry) ToString() (string, error) { return e.name, nil }
func (e *simEntry) Value() (int64, error)     { return e.value, nil }

type simFloat struct {
	simBase
}

func (f *simFloat) ToString() (string, error) {
	v, err := f.Value()
	return fmt.Sprintf("%.1f", v), err
}

func (f *simFloat) Value() (float64, error) {
	f.cam.mu.Lock()
	defer f.cam.mu.Unlock()
	return f.cam.exposure, nil
}

func (f *simFloat) Max() (float64, error) { return f.cam.cfg.MaxExposureUs, nil }

func (f *simFloat) SetValue(v float64) error {
	f.cam.mu.Lock()
	defer f.cam.mu.Unlock()
	if f.readOnly || !f.writableLocked() {
		return newError("SetValue", CodeAccess, "%s is not writable", f.name)
	}
	if v < simMinExposureUs || v > f.cam.cfg.MaxExposureUs {
		return newError("SetValue", CodeOutOfRange, "%s=%.1f outside [%d, %.1f]", f.name, v, simMinExposureUs, f.cam.cfg.MaxExposureUs)
	}
	f.cam.exposure = v
	f.cam.writes = append(f.cam.writes, fmt.Sprintf("%s=%.1f", f.name, v))
	return nil
}

type simCommand struct {
	simBase
}

func (c *simCommand) ToString() (string, error) { return "", nil }

func (c *simCommand) Execute() error {
	c.cam.mu.Lock()
	defer c.cam.mu.Unlock()
	if err := c.cam.enter(c.name); err != nil {
		return err
	}
	if c.readOnly || !c.writableLocked() {
		return newError("Execute", CodeAccess, "%s is not writable", c.name)
	}
	if c.cam.acquiring {
		c.cam.queueTrigger()
	}
	return nil
}

type simString struct {
	simBase
	text string
}

func (s *simString) ToString() (string, error) { return s.text, nil }
func (s *simString) Value() (string, error)    { return s.text, nil }

type simCategory struct {
	simBase
	features []Node
}

func (c *simCategory) ToString() (string, error) { return "", nil }

func (c *simCategory) Features() ([]Node, error) {
	out := make([]Node, len(c.features))
	copy(out, c.features)
	return out, nil
}
