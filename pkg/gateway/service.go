// Package gateway runs channel adapters, the dispatch workers that feed the orchestrator, and the
// HTTP status server.
package gateway

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

	"mathbot/pkg/bus"
	"mathbot/pkg/channel"
	"mathbot/pkg/classify"
	"mathbot/pkg/config"
	"mathbot/pkg/history"
	"mathbot/pkg/logger"
	"mathbot/pkg/metrics"
	"mathbot/pkg/orchestrator"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	toolchainCheckInterval = 30 * time.Second
	eventLogBuffer         = 64
)

// Renderer is the toolchain the service dispatches renders to. *render.Renderer satisfies it.
type Renderer interface {
	orchestrator.Renderer
	Check() error
}

type Service struct {
	cfg          *config.Config
	log          *slog.Logger
	renderer     Renderer
	bus          *bus.MessageBus
	history      *history.Store
	metrics      *metrics.Metrics
	orchestrator *orchestrator.Orchestrator
	channels     []channel.Adapter
	statusServer bool

	mu                sync.RWMutex
	startedAt         time.Time
	toolchainLastOKAt time.Time
	toolchainLastErr  string
	channelStates     map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status            string                  `json:"status"`
	UptimeSeconds     int64                   `json:"uptime_seconds"`
	ToolchainLastOKAt string                  `json:"toolchain_last_ok_at,omitempty"`
	ToolchainLastErr  string                  `json:"toolchain_last_error,omitempty"`
	TrackedResponses  int                     `json:"tracked_responses"`
	Channels          map[string]channelState `json:"channels"`
}

// NewService wires the orchestrator for adapters. The status server is enabled; see
// DisableStatusServer.
func NewService(cfg *config.Config, adapters []channel.Adapter, renderer Renderer, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	log = logger.OrDefault(log)

	grammar, err := classify.ForName(cfg.Classifier.Grammar)
	if err != nil {
		return nil, err
	}

	messageBus := bus.NewMessageBus()
	store := history.New()
	collectors := metrics.New(store.Len)

	orch, err := orchestrator.New(orchestrator.Options{
		Grammar:   grammar,
		Renderer:  renderer,
		History:   store,
		Platforms: channel.NewRegistry(adapters...),
		Bus:       messageBus,
		Metrics:   collectors,
		Reactions: cfg.Reactions,
		Notify:    cfg.Notify,
		Log:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize orchestrator: %w", err)
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		renderer:      renderer,
		bus:           messageBus,
		history:       store,
		metrics:       collectors,
		orchestrator:  orch,
		channels:      adapters,
		statusServer:  true,
		channelStates: channelStates,
	}, nil
}

// DisableStatusServer keeps Run from binding the HTTP status port, for interactive use.
func (s *Service) DisableStatusServer() {
	s.statusServer = false
}

// Bus returns the message bus carrying inbound events and render lifecycle events.
func (s *Service) Bus() *bus.MessageBus {
	return s.bus
}

// Run blocks until ctx is done or a channel or the status server fails. A toolchain that fails
// its check does not stop the service; it only keeps /readyz unready.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkToolchain(); err != nil {
		s.log.Warn("Toolchain check failed", "error", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	defer s.bus.Close()

	if s.statusServer {
		group.Go(func() error {
			return s.runHealthServer(groupCtx)
		})
	}

	group.Go(func() error {
		s.watchToolchain(groupCtx)
		return nil
	})

	events, unsubscribe := s.bus.SubscribeEvents(groupCtx, eventLogBuffer)
	defer unsubscribe()
	group.Go(func() error {
		s.logEvents(events)
		return nil
	})

	workers := s.cfg.Renderer.Workers
	if workers <= 0 {
		workers = 1
	}
	shards := make([]chan bus.InboundMessage, workers)
	for i := range shards {
		shard := make(chan bus.InboundMessage)
		shards[i] = shard
		group.Go(func() error {
			s.work(groupCtx, shard)
			return nil
		})
	}
	group.Go(func() error {
		s.route(groupCtx, shards)
		return nil
	})

	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		group.Go(func() error {
			err := adapter.Run(groupCtx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
			return nil
		})
	}

	s.log.Info("Gateway running", "channels", len(s.channels), "workers", workers, "grammar", s.cfg.Classifier.Grammar)

	return group.Wait()
}

// handleInbound queues an adapter event for the dispatch workers.
func (s *Service) handleInbound(ctx context.Context, inbound bus.InboundMessage) error {
	if !s.bus.PublishInbound(ctx, inbound) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return errors.New("message bus closed")
	}

	return nil
}

// route hands each event to the worker owning its source message, so events for one message
// are handled in arrival order.
func (s *Service) route(ctx context.Context, shards []chan bus.InboundMessage) {
	defer func() {
		for _, shard := range shards {
			close(shard)
		}
	}()

	for {
		msg, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		shard := shards[xxhash.Sum64String(msg.Channel+"/"+msg.Ref.String())%uint64(len(shards))]
		select {
		case <-ctx.Done():
			return
		case shard <- msg:
		}
	}
}

func (s *Service) work(ctx context.Context, shard <-chan bus.InboundMessage) {
	for msg := range shard {
		if err := s.orchestrator.Handle(ctx, msg); err != nil {
			s.log.Warn("Dropped inbound event", "channel", msg.Channel, "source", msg.Ref.String(), "error", err)
		}
	}
}

func (s *Service) logEvents(events <-chan bus.Event) {
	for event := range events {
		attrs := []any{
			"event", event.Type,
			"channel", event.Channel,
			"source", event.Source.String(),
			"render_id", event.RenderID,
		}
		if !event.Response.IsZero() {
			attrs = append(attrs, "response", event.Response.String())
		}
		if event.Error != "" {
			attrs = append(attrs, "error", event.Error)
		}
		s.log.Debug("Render lifecycle", attrs...)
	}
}

func (s *Service) watchToolchain(ctx context.Context) {
	ticker := time.NewTicker(toolchainCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.checkToolchain(); err != nil {
				s.log.Warn("Toolchain check failed", "error", err)
			}
		}
	}
}

func (s *Service) runHealthServer(ctx context.Context) error {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", s.metrics.Handler())

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

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}

	return nil
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

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	tracked := 0
	if s.history != nil {
		tracked = s.history.Len()
	}

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

	toolchainLastOK := ""
	if !s.toolchainLastOKAt.IsZero() {
		toolchainLastOK = s.toolchainLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:            status,
		UptimeSeconds:     uptime,
		ToolchainLastOKAt: toolchainLastOK,
		ToolchainLastErr:  s.toolchainLastErr,
		TrackedResponses:  tracked,
		Channels:          channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.channelStates) == 0 {
		return false
	}

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}

	if !anyRunning {
		return false
	}

	if s.toolchainLastOKAt.IsZero() {
		return false
	}

	return s.toolchainLastErr == ""
}

func (s *Service) checkToolchain() error {
	if err := s.renderer.Check(); err != nil {
		s.mu.Lock()
		s.toolchainLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("toolchain check failed: %w", err)
	}

	s.mu.Lock()
	s.toolchainLastErr = ""
	s.toolchainLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
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
