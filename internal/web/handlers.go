package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxRequestBytes bounds the POST /run body.
	MaxRequestBytes = 1 << 20
	// MinRunInterval is the cooldown between two accepted runs.
	MinRunInterval = 5 * time.Second
	// MaxExposureUs is the largest exposure a request may ask for (30 s).
	MaxExposureUs = 30e6
	// MaxFrames is the largest free-run frame count a request may ask for.
	MaxFrames = 1000
)

// Run modes accepted by POST /run.
const (
	ModeRecord  = "record"
	ModeTrigger = "trigger"
)

// RunRequest holds run parameters. Zero values mean "use config default".
type RunRequest struct {
	Mode       string  `json:"mode"`
	Source     string  `json:"source,omitempty"`
	ExposureUs float64 `json:"exposure_us,omitempty"`
	Frames     int     `json:"frames,omitempty"`
}

// RunFunc runs an acquisition with the given request.
// It is called from the POST /run handler in a goroutine.
type RunFunc func(ctx context.Context, runID string, req RunRequest) error

// FireFunc releases pending software triggers and returns how many there were.
type FireFunc func() int

// FormConfig holds default values for the run form (from config).
type FormConfig struct {
	Mode       string   `json:"mode"`
	Source     string   `json:"source"`
	ExposureUs float64  `json:"exposure_us"`
	Frames     int      `json:"frames"`
	Backend    string   `json:"backend"`
	Cameras    []string `json:"cameras,omitempty"`
}

// ValidateRunRequest checks the mode and that non-zero values are within
// valid ranges.
func ValidateRunRequest(req RunRequest) error {
	switch req.Mode {
	case ModeRecord, ModeTrigger:
	default:
		return fmt.Errorf("mode must be %s or %s", ModeRecord, ModeTrigger)
	}
	switch strings.ToLower(req.Source) {
	case "", "software", "line0", "hardware":
	default:
		return fmt.Errorf("source must be software or line0")
	}
	if e := req.ExposureUs; math.IsNaN(e) || math.IsInf(e, 0) || e < 0 || e > MaxExposureUs {
		return fmt.Errorf("exposure_us must be between 0 and %g", float64(MaxExposureUs))
	}
	if req.Frames < 0 || req.Frames > MaxFrames {
		return fmt.Errorf("frames must be between 0 and %d", MaxFrames)
	}
	return nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Run          RunFunc
	Fire         FireFunc
	FormDefaults FormConfig
	staticFS     fs.FS

	// BaseContext is the parent of every run context. Server.Run sets it so
	// that shutting down the server cancels a run in progress.
	BaseContext context.Context

	runningMu sync.Mutex
	running   bool
	runID     string
	lastStart time.Time
	now       func() time.Time
}

// NewHandlers creates handlers with the given dependencies.
// If run is nil, POST /run will return 503 Service Unavailable; the same
// holds for fire and POST /trigger.
func NewHandlers(broadcaster *StatusBroadcaster, run RunFunc, fire FireFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Run:          run,
		Fire:         fire,
		FormDefaults: formDefaults,
		staticFS:     staticFS,
		BaseContext:  context.Background(),
		now:          time.Now,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleRun handles POST /run to start an acquisition.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateRunRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Run == nil {
		http.Error(w, "acquisition not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "run already in progress", http.StatusConflict)
		return
	}
	if !h.lastStart.IsZero() && h.now().Sub(h.lastStart) < MinRunInterval {
		h.runningMu.Unlock()
		http.Error(w, "too many runs, retry later", http.StatusTooManyRequests)
		return
	}
	runID := uuid.NewString()
	h.running = true
	h.runID = runID
	h.lastStart = h.now()
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runID = ""
			h.runningMu.Unlock()
		}()

		if err := h.Run(h.BaseContext, runID, req); err != nil {
			h.Broadcaster.Broadcast("error", "Run "+runID+" failed: "+err.Error())
			log.Printf("run %s failed: %v", runID, err)
		} else {
			h.Broadcaster.Broadcast("info", "Run "+runID+" complete")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started", "run_id": runID})
}

// HandleTrigger handles POST /trigger: it releases every camera waiting for
// a software trigger.
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Fire == nil {
		http.Error(w, "software trigger not configured", http.StatusServiceUnavailable)
		return
	}
	n := h.Fire()
	if n == 0 {
		http.Error(w, "no camera is waiting for a trigger", http.StatusConflict)
		return
	}
	h.Broadcaster.Broadcast("info", fmt.Sprintf("Software trigger released %d camera(s)", n))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"fired": n})
}

// HandleStatus returns whether a run is in progress.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	status := struct {
		Running bool   `json:"running"`
		RunID   string `json:"run_id,omitempty"`
	}{h.running, h.runID}
	h.runningMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
