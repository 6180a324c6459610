//go:build spinnaker

package spin

/*
#cgo CFLAGS: -I/opt/spinnaker/include/spinc
#cgo LDFLAGS: -L/opt/spinnaker/lib -lSpinnaker_C
#include <stdlib.h>
#include "SpinnakerC.h"
*/
import "C"

import (
	"sync"
	"time"
	"unsafe"
)

const maxBuffLen = 256

func check(op string, e C.spinError) error {
	if e == C.SPINNAKER_ERR_SUCCESS {
		return nil
	}
	return &Error{Op: op, Code: Code(e)}
}

type spinSystem struct {
	h C.spinSystem
}

func newSpinnakerSystem() (System, error) {
	var h C.spinSystem
	if err := check("GetInstance", C.spinSystemGetInstance(&h)); err != nil {
		return nil, err
	}
	return &spinSystem{h: h}, nil
}

func (s *spinSystem) LibraryVersion() Version {
	var v C.spinLibraryVersion
	if err := check("GetLibraryVersion", C.spinSystemGetLibraryVersion(s.h, &v)); err != nil {
		return Version{}
	}
	return Version{Major: uint(v.major), Minor: uint(v.minor), Type: uint(v._type), Build: uint(v.build)}
}

func (s *spinSystem) Cameras() (CameraList, error) {
	var l C.spinCameraList
	if err := check("CameraListCreateEmpty", C.spinCameraListCreateEmpty(&l)); err != nil {
		return nil, err
	}
	if err := check("GetCameras", C.spinSystemGetCameras(s.h, l)); err != nil {
		C.spinCameraListDestroy(l)
		return nil, err
	}
	var n C.size_t
	if err := check("CameraListGetSize", C.spinCameraListGetSize(l, &n)); err != nil {
		C.spinCameraListDestroy(l)
		return nil, err
	}
	return &spinList{h: l, n: int(n)}, nil
}

func (s *spinSystem) Release() error {
	return check("ReleaseInstance", C.spinSystemReleaseInstance(s.h))
}

type spinList struct {
	mu      sync.Mutex
	h       C.spinCameraList
	n       int
	cams    []*spinCamera
	cleared bool
}

func (l *spinList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cleared {
		return 0
	}
	return l.n
}

func (l *spinList) At(i int) (Camera, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cleared || i < 0 || i >= l.n {
		return nil, newError("CameraListGet", CodeInvalidParam, "index %d out of range", i)
	}
	var h C.spinCamera
	if err := check("CameraListGet", C.spinCameraListGet(l.h, C.size_t(i), &h)); err != nil {
		return nil, err
	}
	cam := &spinCamera{h: h}
	l.cams = append(l.cams, cam)
	return cam, nil
}

// Clear releases every camera handle handed out by At, then empties and
// destroys the underlying list.
func (l *spinList) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cleared {
		return nil
	}
	l.cleared = true
	var first error
	keep := func(err error) {
		if first == nil {
			first = err
		}
	}
	for _, c := range l.cams {
		keep(check("CameraRelease", C.spinCameraRelease(c.h)))
	}
	l.cams = nil
	keep(check("CameraListClear", C.spinCameraListClear(l.h)))
	keep(check("CameraListDestroy", C.spinCameraListDestroy(l.h)))
	return first
}

type spinCamera struct {
	h C.spinCamera
}

func (c *spinCamera) Init() error   { return check("CameraInit", C.spinCameraInit(c.h)) }
func (c *spinCamera) DeInit() error { return check("CameraDeInit", C.spinCameraDeInit(c.h)) }

func (c *spinCamera) IsInitialized() bool {
	var b C.bool8_t
	if check("CameraIsInitialized", C.spinCameraIsInitialized(c.h, &b)) != nil {
		return false
	}
	return b != 0
}

func (c *spinCamera) NodeMap() NodeMap {
	var h C.spinNodeMapHandle
	if check("CameraGetNodeMap", C.spinCameraGetNodeMap(c.h, &h)) != nil {
		return spinNodeMap{}
	}
	return spinNodeMap{h: h, ok: true}
}

func (c *spinCamera) TLDeviceNodeMap() NodeMap {
	var h C.spinNodeMapHandle
	if check("CameraGetTLDeviceNodeMap", C.spinCameraGetTLDeviceNodeMap(c.h, &h)) != nil {
		return spinNodeMap{}
	}
	return spinNodeMap{h: h, ok: true}
}

func (c *spinCamera) BeginAcquisition() error {
	return check("CameraBeginAcquisition", C.spinCameraBeginAcquisition(c.h))
}

func (c *spinCamera) EndAcquisition() error {
	return check("CameraEndAcquisition", C.spinCameraEndAcquisition(c.h))
}

func (c *spinCamera) NextImage(timeout time.Duration) (Image, error) {
	var h C.spinImage
	ms := C.uint64_t(timeout / time.Millisecond)
	if err := check("GetNextImage", C.spinCameraGetNextImageEx(c.h, ms, &h)); err != nil {
		return nil, err
	}
	return &spinImage{h: h, owned: true}, nil
}

type spinImage struct {
	h     C.spinImage
	owned bool // returned by the camera stream, released with spinImageRelease
}

func (i *spinImage) Incomplete() bool {
	var b C.bool8_t
	if check("ImageIsIncomplete", C.spinImageIsIncomplete(i.h, &b)) != nil {
		return true
	}
	return b != 0
}

func (i *spinImage) Status() ImageStatus {
	var s C.spinImageStatus
	if check("ImageGetStatus", C.spinImageGetStatus(i.h, &s)) != nil {
		return ImageUnknownError
	}
	return ImageStatus(s)
}

func (i *spinImage) Width() int {
	var n C.size_t
	C.spinImageGetWidth(i.h, &n)
	return int(n)
}

func (i *spinImage) Height() int {
	var n C.size_t
	C.spinImageGetHeight(i.h, &n)
	return int(n)
}

func (i *spinImage) PixelFormat() PixelFormat {
	var f C.spinPixelFormatEnums
	if check("ImageGetPixelFormat", C.spinImageGetPixelFormat(i.h, &f)) != nil {
		return PixelFormatUnknown
	}
	switch f {
	case C.PixelFormat_Mono8:
		return PixelFormatMono8
	case C.PixelFormat_Mono16:
		return PixelFormatMono16
	case C.PixelFormat_BayerRG8:
		return PixelFormatBayerRG8
	}
	return PixelFormatUnknown
}

func cPixelFormat(f PixelFormat) (C.spinPixelFormatEnums, error) {
	switch f {
	case PixelFormatMono8:
		return C.PixelFormat_Mono8, nil
	case PixelFormatMono16:
		return C.PixelFormat_Mono16, nil
	case PixelFormatBayerRG8:
		return C.PixelFormat_BayerRG8, nil
	}
	return 0, newError("ImageProcessorConvert", CodeInvalidParam, "unsupported pixel format %s", f)
}

func (i *spinImage) Convert(format PixelFormat) (Image, error) {
	dst, err := cPixelFormat(format)
	if err != nil {
		return nil, err
	}
	var proc C.spinImageProcessor
	if err := check("ImageProcessorCreate", C.spinImageProcessorCreate(&proc)); err != nil {
		return nil, err
	}
	defer C.spinImageProcessorDestroy(proc)
	C.spinImageProcessorSetColorProcessing(proc, C.SPINNAKER_COLOR_PROCESSING_ALGORITHM_HQ_LINEAR)

	var out C.spinImage
	if err := check("ImageCreateEmpty", C.spinImageCreateEmpty(&out)); err != nil {
		return nil, err
	}
	if err := check("ImageProcessorConvert", C.spinImageProcessorConvert(proc, i.h, out, dst)); err != nil {
		C.spinImageDestroy(out)
		return nil, err
	}
	return &spinImage{h: out}, nil
}

func (i *spinImage) Save(path string) error {
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))
	return check("ImageSave", C.spinImageSave(i.h, cs, C.SPINNAKER_IMAGE_FILE_FORMAT_FROM_FILE_EXT))
}

func (i *spinImage) Release() error {
	if i.owned {
		return check("ImageRelease", C.spinImageRelease(i.h))
	}
	return check("ImageDestroy", C.spinImageDestroy(i.h))
}

type spinNodeMap struct {
	h  C.spinNodeMapHandle
	ok bool
}

func (m spinNodeMap) Node(name string) Node {
	if !m.ok {
		return nil
	}
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	var h C.spinNodeHandle
	if check("NodeMapGetNode", C.spinNodeMapGetNode(m.h, cs, &h)) != nil || h == nil {
		return nil
	}
	return wrapNode(h, name)
}

func wrapNode(h C.spinNodeHandle, name string) Node {
	b := spinBase{h: h, name: name}
	var t C.spinNodeType
	if check("NodeGetType", C.spinNodeGetType(h, &t)) != nil {
		return &b
	}
	switch t {
	case C.EnumerationNode:
		b.kind = KindEnumeration
		return &spinEnum{b}
	case C.EnumEntryNode:
		b.kind = KindEnumEntry
		return &spinEntry{b}
	case C.FloatNode:
		b.kind = KindFloat
		return &spinFloat{b}
	case C.CommandNode:
		b.kind = KindCommand
		return &spinCommand{b}
	case C.StringNode:
		b.kind = KindString
		return &spinString{b}
	case C.CategoryNode:
		b.kind = KindCategory
		return &spinCategory{b}
	case C.IntegerNode:
		b.kind = KindInteger
	case C.BooleanNode:
		b.kind = KindBoolean
	}
	return &b
}

func readBuf(op string, fn func(buf *C.char, n *C.size_t) C.spinError) (string, error) {
	buf := (*C.char)(C.malloc(maxBuffLen))
	defer C.free(unsafe.Pointer(buf))
	n := C.size_t(maxBuffLen)
	if err := check(op, fn(buf, &n)); err != nil {
		return "", err
	}
	return C.GoString(buf), nil
}

type spinBase struct {
	h    C.spinNodeHandle
	name string
	kind NodeKind
}

func (b *spinBase) Name() string   { return b.name }
func (b *spinBase) Kind() NodeKind { return b.kind }

func (b *spinBase) flag(op string, fn func(C.spinNodeHandle, *C.bool8_t) C.spinError) bool {
	var v C.bool8_t
	if check(op, fn(b.h, &v)) != nil {
		return false
	}
	return v != 0
}

func (b *spinBase) IsAvailable() bool {
	return b.flag("NodeIsAvailable", func(h C.spinNodeHandle, v *C.bool8_t) C.spinError {
		return C.spinNodeIsAvailable(h, v)
	})
}

func (b *spinBase) IsReadable() bool {
	return b.flag("NodeIsReadable", func(h C.spinNodeHandle, v *C.bool8_t) C.spinError {
		return C.spinNodeIsReadable(h, v)
	})
}

func (b *spinBase) IsWritable() bool {
	return b.flag("NodeIsWritable", func(h C.spinNodeHandle, v *C.bool8_t) C.spinError {
		return C.spinNodeIsWritable(h, v)
	})
}

func (b *spinBase) ToString() (string, error) {
	return readBuf("NodeToString", func(buf *C.char, n *C.size_t) C.spinError {
		return C.spinNodeToString(b.h, buf, n)
	})
}

type spinEnum struct{ spinBase }

func (e *spinEnum) EntryByName(name string) EnumEntry {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	var h C.spinNodeHandle
	if check("EnumerationGetEntryByName", C.spinEnumerationGetEntryByName(e.h, cs, &h)) != nil || h == nil {
		return nil
	}
	return &spinEntry{spinBase{h: h, name: name, kind: KindEnumEntry}}
}

func (e *spinEnum) IntValue() (int64, error) {
	var h C.spinNodeHandle
	if err := check("EnumerationGetCurrentEntry", C.spinEnumerationGetCurrentEntry(e.h, &h)); err != nil {
		return 0, err
	}
	return (&spinEntry{spinBase{h: h}}).Value()
}

func (e *spinEnum) SetIntValue(v int64) error {
	return check("EnumerationSetIntValue", C.spinEnumerationSetIntValue(e.h, C.int64_t(v)))
}

type spinEntry struct{ spinBase }

func (e *spinEntry) Value() (int64, error) {
	var v C.int64_t
	if err := check("EnumerationEntryGetIntValue", C.spinEnumerationEntryGetIntValue(e.h, &v)); err != nil {
		return 0, err
	}
	return int64(v), nil
}

type spinFloat struct{ spinBase }

func (f *spinFloat) Value() (float64, error) {
	var v C.double
	err := check("FloatGetValue", C.spinFloatGetValue(f.h, &v))
	return float64(v), err
}

func (f *spinFloat) Max() (float64, error) {
	var v C.double
	err := check("FloatGetMax", C.spinFloatGetMax(f.h, &v))
	return float64(v), err
}

func (f *spinFloat) SetValue(v float64) error {
	return check("FloatSetValue", C.spinFloatSetValue(f.h, C.double(v)))
}

type spinCommand struct{ spinBase }

func (c *spinCommand) Execute() error {
	return check("CommandExecute", C.spinCommandExecute(c.h))
}

type spinString struct{ spinBase }

func (s *spinString) Value() (string, error) {
	return readBuf("StringGetValue", func(buf *C.char, n *C.size_t) C.spinError {
		return C.spinStringGetValue(s.h, buf, n)
	})
}

type spinCategory struct{ spinBase }

func (c *spinCategory) Features() ([]Node, error) {
	var n C.size_t
	if err := check("CategoryGetNumFeatures", C.spinCategoryGetNumFeatures(c.h, &n)); err != nil {
		return nil, err
	}
	out := make([]Node, 0, int(n))
	for i := C.size_t(0); i < n; i++ {
		var h C.spinNodeHandle
		if err := check("CategoryGetFeatureByIndex", C.spinCategoryGetFeatureByIndex(c.h, i, &h)); err != nil {
			return nil, err
		}
		name, err := readBuf("NodeGetName", func(buf *C.char, l *C.size_t) C.spinError {
			return C.spinNodeGetName(h, buf, l)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, wrapNode(h, name))
	}
	return out, nil
}
