package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/tts"
)

const maxRequestBody = 64 << 10

type apiServer struct {
	addr     string
	registry *Registry
	logger   *log.Logger
	server   *http.Server

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

func newAPIServer(addr string, registry *Registry, logger *log.Logger) *apiServer {
	if logger == nil {
		logger = log.Default()
	}
	s := &apiServer{
		addr:     addr,
		registry: registry,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/speak", s.handleSpeak)
	mux.HandleFunc("GET /v1/instances", s.handleInstances)
	mux.HandleFunc("GET /v1/instances/{name}", s.handleInstance)
	mux.HandleFunc("POST /v1/instances/{name}/clear", s.handleClear)
	mux.HandleFunc("POST /v1/instances/{name}/skip", s.handleSkip)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *apiServer) start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api listening", "addr", ln.Addr().String())
	return nil
}

func (s *apiServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("api shutdown", "err", err)
	}
	s.wg.Wait()
}

// boundAddr returns the address actually listened on.
func (s *apiServer) boundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "instances": s.registry.Len()})
}

func (s *apiServer) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := validateSpeak(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched, err := s.registry.Resolve(req.Instance, req.Target)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	a, err := sched.Enqueue(r.Context(), tts.EnqueueRequest{
		Message:        req.Message,
		Target:         req.Target,
		Language:       req.Language,
		Options:        req.Options,
		Priority:       req.Priority,
		VolumeOverride: req.VolumeOverride,
		PreRollMs:      req.PreRollMs,
		Interrupt:      req.Interrupt,
	})
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, SpeakResponse{
		ID:        a.ID,
		Instance:  sched.Name(),
		Target:    a.Target,
		QueueSize: sched.Size(),
	})
}

func validateSpeak(req SpeakRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}
	if v := req.VolumeOverride; v != nil && (math.IsNaN(*v) || *v < 0 || *v > 1) {
		return fmt.Errorf("volume_override must be between 0 and 1, got %v", *v)
	}
	if p := req.PreRollMs; p != nil && (*p < 0 || *p > int(tts.MaxPreRoll/time.Millisecond)) {
		return fmt.Errorf("pre_roll_ms must be between 0 and %d, got %d", tts.MaxPreRoll/time.Millisecond, *p)
	}
	return nil
}

func (s *apiServer) handleInstances(w http.ResponseWriter, _ *http.Request) {
	all := s.registry.All()
	resp := InstancesResponse{Instances: make([]InstanceStatus, 0, len(all))}
	for _, sched := range all {
		resp.Instances = append(resp.Instances, convertStatus(sched.Status()))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleInstance(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, convertStatus(sched.Status()))
}

func (s *apiServer) handleClear(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, ClearResponse{Instance: sched.Name(), Dropped: sched.Clear()})
}

func (s *apiServer) handleSkip(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.lookup(w, r)
	if !ok {
		return
	}

	resp := SkipResponse{Instance: sched.Name()}
	if cur := sched.Status().Current; cur != nil {
		resp.Skipped = cur.ID
	}
	if err := sched.SkipCurrent(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) lookup(w http.ResponseWriter, r *http.Request) (*tts.Scheduler, bool) {
	name := r.PathValue("name")
	sched, ok := s.registry.Get(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, s.registry.Unknown(name).Error())
		return nil, false
	}
	return sched, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var outErr *tts.OutputError
	switch {
	case errors.Is(err, tts.ErrUnknownInstance):
		return http.StatusNotFound
	case errors.Is(err, tts.ErrEmptyMessage), errors.Is(err, tts.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, tts.ErrSchedulerStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &outErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", "err", err)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
