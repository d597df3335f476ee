package status

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/kb"
)

const (
	streamBuffer = 64
	writeWait    = 5 * time.Second
)

// handleStream upgrades to a websocket and forwards KB events as EventView
// JSON messages. The first message is a "snapshot" of the mission state at
// subscription time. Events that arrive while the client is slow are dropped.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.log.Debug(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.StreamRate), 1)
	events := make(chan kb.Event, streamBuffer)
	unsubscribe := s.store.Subscribe(func(ev kb.Event) {
		if (ev.Type == kb.EventTelemetry || ev.Type == kb.EventOrbit) && !limiter.Allow() {
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	snap := s.store.Snapshot()
	hello := EventView{
		Type:        "snapshot",
		MissionID:   snap.MissionID,
		UT:          finite(snap.UT),
		Phase:       snap.Phase.String(),
		AscentPhase: snap.AscentPhase.String(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-s.done:
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(eventView(ev)); err != nil {
				s.log.Debug(r.Context(), "telemetry stream closed", logging.Err(err))
				return
			}
		}
	}
}

// instrument counts requests per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.ObserveHTTP(route, rec.code)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection. A hijacked
// request is recorded as 101.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}
