package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaygram/pkg/backend"
	"relaygram/pkg/channel"
	"relaygram/pkg/config"
	"relaygram/pkg/dispatch"
	"relaygram/pkg/session"
)

const (
	defaultOpsHost = "0.0.0.0"
	defaultOpsPort = 18790
)

// Channel is a platform adapter that also exposes the outbound capability
// the dispatcher drives against its chats.
type Channel interface {
	channel.Adapter
	dispatch.Messenger
}

// Service runs the relay: it supervises channel adapters, serializes
// dispatch cycles per chat, and optionally serves health and status
// endpoints.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	backend    *backend.Client
	sessions   *session.Store
	normalizer *Normalizer
	queue      *chatQueue
	runtimes   []*channelRuntime

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
	counters      dispatchCounters
}

// channelRuntime pairs one adapter with the dispatcher bound to its
// outbound capability.
type channelRuntime struct {
	adapter    Channel
	dispatcher *dispatch.Dispatcher
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// dispatchCounters tallies cycle outcomes for the status endpoint.
type dispatchCounters struct {
	Sent   int64 `json:"sent"`
	NoOp   int64 `json:"noop"`
	Failed int64 `json:"failed"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	TrackedChats  int                     `json:"tracked_chats"`
	Channels      map[string]channelState `json:"channels"`
	Dispatch      dispatchCounters        `json:"dispatch"`
}

// NewService builds the relay service around the configured backend and the
// given channels.
func NewService(cfg *config.Config, channels []Channel, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	if log == nil {
		log = slog.Default()
	}

	sessions := session.New(cfg.Session.MaxEntries, time.Duration(cfg.Session.IdleTTLHours)*time.Hour, log)
	client := backend.New(cfg.Backend, log)

	runtimes := make([]*channelRuntime, 0, len(channels))
	channelStates := make(map[string]channelState, len(channels))
	for _, adapter := range channels {
		runtimes = append(runtimes, &channelRuntime{
			adapter:    adapter,
			dispatcher: dispatch.NewDispatcher(adapter, sessions, log),
		})
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "relay.service"),
		backend:       client,
		sessions:      sessions,
		normalizer:    NewNormalizer(sessions),
		queue:         newChatQueue(),
		runtimes:      runtimes,
		channelStates: channelStates,
	}, nil
}

// Run starts the channels and blocks until the context is canceled or a
// channel or the ops server fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	defer s.sessions.Close()

	serverErrors := make(chan error, 1)
	if s.cfg.Ops.Enabled {
		go s.runOpsServer(ctx, serverErrors)
	}

	errCh := make(chan error, len(s.runtimes))
	for _, runtime := range s.runtimes {
		runtime := runtime
		s.setChannelState(runtime.adapter.Name(), channelState{Running: true})

		go func() {
			err := runtime.adapter.Run(ctx, s.handlerFor(runtime))
			s.setChannelState(runtime.adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", runtime.adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// handlerFor returns the inbound handler for one channel. Cycles for the
// same chat are serialized through the queue; distinct chats interleave
// freely on the adapter's workers.
func (s *Service) handlerFor(runtime *channelRuntime) channel.Handler {
	return func(ctx context.Context, update channel.Update) error {
		return s.queue.Run(ctx, update.ChatID, func(ctx context.Context) error {
			s.runCycle(ctx, runtime.dispatcher, update)
			return nil
		})
	}
}

// runCycle is one dispatch cycle: normalize, exchange, execute. By the time
// it returns, every failure has degraded to a logged no-op; the chat user
// never sees an error message.
func (s *Service) runCycle(ctx context.Context, dispatcher *dispatch.Dispatcher, update channel.Update) {
	started := time.Now()

	payload := s.normalizer.Normalize(update)
	response := s.backend.Exchange(ctx, payload)
	if response.UserRole != "" {
		s.sessions.SetRole(update.ChatID, response.UserRole)
	}

	result := dispatcher.Dispatch(ctx, update.ChatID, response)
	s.recordResult(result)

	s.log.Debug("Dispatch cycle completed",
		"chat_id", update.ChatID,
		"message_type", payload.MessageType,
		"action", response.Action,
		"result", result.Status.String(),
		"duration_ms", time.Since(started).Milliseconds())
}

func (s *Service) recordResult(result dispatch.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch result.Status {
	case dispatch.StatusSent:
		s.counters.Sent++
	case dispatch.StatusFailed:
		s.counters.Failed++
	default:
		s.counters.NoOp++
	}
}

func (s *Service) runOpsServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Ops.Host)
	if host == "" {
		host = defaultOpsHost
	}

	port := s.cfg.Ops.Port
	if port <= 0 {
		port = defaultOpsPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Ops server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start ops server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	if !s.isReady() {
		status = "not_ready"
	}

	s.respondStatus(w, http.StatusOK, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		TrackedChats:  s.sessions.Len(),
		Channels:      channels,
		Dispatch:      s.counters,
	}
}

// isReady reports whether at least one channel is consuming updates. The
// backend does not gate readiness: an unreachable backend degrades every
// exchange to a no-op rather than making the relay unhealthy.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
