// Package status serves the read-only mission status surface: a gRPC health
// service whose serving status follows the mission, and an HTTP router with
// Prometheus metrics, a JSON mission summary and a websocket event stream.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/internal/observability"
	"github.com/signalsfoundry/ascent-guidance/kb"
	"github.com/signalsfoundry/ascent-guidance/model"
)

// ServiceName is the health service name reported alongside the overall ("")
// status.
const ServiceName = "guidance.Mission"

// Config holds the listen addresses of the status surface. An empty address
// disables that listener.
type Config struct {
	GRPCAddr string
	HTTPAddr string
	// StreamRate caps telemetry and orbit messages per second on each
	// websocket stream. Phase, staging and plan events are never dropped by
	// the limiter.
	StreamRate float64
}

// Server is the mission status surface.
type Server struct {
	cfg     Config
	log     logging.Logger
	store   *kb.KnowledgeBase
	metrics *observability.StatusCollector

	health   *health.Server
	grpc     *grpc.Server
	http     *http.Server
	router   *mux.Router
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	serving healthpb.HealthCheckResponse_ServingStatus

	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

// NewServer builds the gRPC and HTTP servers over store. The health status
// tracks mission phase changes recorded in store. A nil metrics collector
// disables request metrics.
func NewServer(cfg Config, store *kb.KnowledgeBase, metrics *observability.StatusCollector, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.StreamRate <= 0 {
		cfg.StreamRate = 5
	}
	s := &Server{
		cfg:     cfg,
		log:     log.With(logging.String("component", "status")),
		store:   store,
		metrics: metrics,
		health:  health.NewServer(),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.grpc = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			LoggerUnaryServerInterceptor(s.log),
			TracingUnaryServerInterceptor(),
			metrics.UnaryServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	s.router = s.newRouter()
	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.SetMissionStatus(model.MissionPending)
	s.unsubscribe = store.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventMissionPhase {
			s.SetMissionStatus(ev.Phase)
		}
	})
	return s
}

// SetMissionStatus maps a mission phase onto the health status: an aborted
// mission is NOT_SERVING, every other phase is SERVING.
func (s *Server) SetMissionStatus(phase model.MissionPhase) {
	st := healthpb.HealthCheckResponse_SERVING
	if phase == model.MissionAborted {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.mu.Lock()
	changed := st != s.serving
	s.serving = st
	s.mu.Unlock()

	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	if changed {
		s.log.Info(context.Background(), "mission health changed",
			logging.Phase(phase),
			logging.String("status", st.String()),
		)
	}
}

// ServingStatus returns the current health status.
func (s *Server) ServingStatus() healthpb.HealthCheckResponse_ServingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serving
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// GRPCServer exposes the gRPC server so callers can register more services
// or serve it on their own listener.
func (s *Server) GRPCServer() *grpc.Server { return s.grpc }

// ListenAndServe opens the configured listeners and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var grpcLis, httpLis net.Listener
	var err error
	if s.cfg.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", s.cfg.GRPCAddr); err != nil {
			return err
		}
	}
	if s.cfg.HTTPAddr != "" {
		if httpLis, err = net.Listen("tcp", s.cfg.HTTPAddr); err != nil {
			if grpcLis != nil {
				grpcLis.Close()
			}
			return err
		}
	}
	return s.Serve(ctx, grpcLis, httpLis)
}

// Serve serves gRPC on grpcLis and HTTP on httpLis (either may be nil) until
// ctx is done or a server fails, then shuts both down.
func (s *Server) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	errCh := make(chan error, 2)
	if grpcLis != nil {
		s.log.Info(ctx, "serving gRPC health", logging.String("addr", grpcLis.Addr().String()))
		go func() { errCh <- s.grpc.Serve(grpcLis) }()
	}
	if httpLis != nil {
		s.log.Info(ctx, "serving HTTP status", logging.String("addr", httpLis.Addr().String()))
		go func() {
			if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Shutdown stops both servers and closes open streams. It is safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.unsubscribe()
		close(s.done)
		s.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.grpc.Stop()
		}
		err = s.http.Shutdown(ctx)
	})
	return err
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/mission", s.handleMission).Methods(http.MethodGet)
	r.HandleFunc("/telemetry/stream", s.handleStream).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.ServingStatus()
	code := http.StatusOK
	if st != healthpb.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status": st.String(),
		"phase":  s.store.Snapshot().Phase.String(),
	})
}

func (s *Server) handleMission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, missionView(s.store.Snapshot(), s.ServingStatus().String()))
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
