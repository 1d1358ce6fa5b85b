package control

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/colosseo-ops/acquirer/x/registry"
	"github.com/colosseo-ops/acquirer/x/store"
)

// Server is the control-plane RPC surface. It is the only component with
// background task lifecycles: one task per open stream, cancel handles
// bound in the registry.
type Server struct {
	cfg       Config
	log       zerolog.Logger
	registry  *registry.Registry
	store     store.Store
	detector  Detector
	processor Processor

	statsMu sync.RWMutex
	stats   map[string]*targetStats

	// pollInterval is hot-reloadable; running monitor tasks pick up a
	// change on their next tick.
	pollInterval atomic.Int64

	checksTotal  atomic.Uint64
	errorsTotal  atomic.Uint64
	latencySumMS atomic.Int64
}

// targetStats is per-target control-plane bookkeeping, separate from the
// lifecycle payload.
type targetStats struct {
	checks      atomic.Uint64
	detections  atomic.Uint64
	lastCheckMS atomic.Int64

	mu    sync.Mutex
	proxy string
}

func (t *targetStats) setProxy(p string) {
	t.mu.Lock()
	t.proxy = p
	t.mu.Unlock()
}

func (t *targetStats) currentProxy() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.proxy
}

// NewServer wires the control plane. detector and processor default to
// their placeholder implementations when nil.
func NewServer(cfg Config, log zerolog.Logger, reg *registry.Registry, st store.Store, detector Detector, processor Processor) *Server {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MetricsCadence <= 0 {
		cfg.MetricsCadence = def.MetricsCadence
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = def.StreamBuffer
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = def.ClaimTTL
	}
	if cfg.DetectionThreshold <= 0 {
		cfg.DetectionThreshold = def.DetectionThreshold
	}
	if detector == nil {
		detector = NopDetector{}
	}
	if processor == nil {
		processor = AutoApproveProcessor{}
	}

	s := &Server{
		cfg:       cfg,
		log:       log.With().Str("component", "control").Logger(),
		registry:  reg,
		store:     st,
		detector:  detector,
		processor: processor,
		stats:     make(map[string]*targetStats),
	}
	s.pollInterval.Store(int64(cfg.PollInterval))
	return s
}

// SetPollInterval retunes the monitor cadence without restarting tasks.
func (s *Server) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.pollInterval.Store(int64(d))
	s.log.Info().Dur("poll_interval", d).Msg("poll interval updated")
}

// RegisterMux mounts the control surface on the router.
func (s *Server) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeStartMonitoring, s.handleStartMonitoring).Methods(http.MethodPost)
	r.HandleFunc(routeStopMonitoring, s.handleStopMonitoring).Methods(http.MethodDelete)
	r.HandleFunc(routeStatus, s.handleGetStatus).Methods(http.MethodGet)
	r.HandleFunc(routeMetricsStream, s.handleStreamMetrics).Methods(http.MethodGet)

	r.HandleFunc(routeInitiateAcquisition, s.handleInitiateAcquisition).Methods(http.MethodPost)
	r.HandleFunc(routeCartStatus, s.handleGetCartStatus).Methods(http.MethodGet)
	r.HandleFunc(routeCompletePayment, s.handleCompletePayment).Methods(http.MethodPost)
	r.HandleFunc(routeReleaseCart, s.handleReleaseCart).Methods(http.MethodPost)
}

func (s *Server) statsFor(targetID string) *targetStats {
	s.statsMu.RLock()
	st, ok := s.stats[targetID]
	s.statsMu.RUnlock()
	if ok {
		return st
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if st, ok = s.stats[targetID]; ok {
		return st
	}
	st = &targetStats{}
	s.stats[targetID] = st
	return st
}

// streamNDJSON drains events onto the wire, one JSON document per line,
// flushing each. It returns when ctx ends or the consumer drops the
// connection; the returned cancel path is the caller's ctx.
func streamNDJSON[T any](w http.ResponseWriter, ctx <-chan struct{}, events <-chan T, onDead func()) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				onDead()
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
