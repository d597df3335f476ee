package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/ascent-guidance/model"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewStatusCollector(reg)
	if err != nil {
		t.Fatalf("NewStatusCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("status_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "status_rpc_duration_seconds", map[string]string{
		"service": "Health",
		"method":  "Check",
	}); count != 1 {
		t.Fatalf("status_rpc_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewStatusCollector(reg)
	if err != nil {
		t.Fatalf("NewStatusCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("status_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestStatusCollectorRegistersTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewStatusCollector(reg)
	if err != nil {
		t.Fatalf("first NewStatusCollector: %v", err)
	}
	second, err := NewStatusCollector(reg)
	if err != nil {
		t.Fatalf("second NewStatusCollector: %v", err)
	}
	first.ObserveHTTP("/mission", 200)
	second.ObserveHTTP("/mission", 200)
	if got := testutil.ToFloat64(first.HTTPRequests.WithLabelValues("/mission", "200")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestMetricsHandlerExposesMissionGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	surface, err := NewStatusCollector(reg)
	if err != nil {
		t.Fatalf("NewStatusCollector: %v", err)
	}
	mission, err := NewMissionCollector(reg)
	if err != nil {
		t.Fatalf("NewMissionCollector: %v", err)
	}
	mission.TelemetrySampled(context.Background(), model.TelemetrySample{Altitude: 12345, CurrentStage: 4, FuelInStage: 77})
	surface.StreamOpened()
	surface.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	surface.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	surface.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"status_rpc_requests_total",
		"status_rpc_duration_seconds",
		"status_telemetry_stream_connections 1",
		"guidance_altitude_meters 12345",
		"guidance_current_stage 4",
		"guidance_stage_fuel_units 77",
		"guidance_staging_unverified_total 0",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in, service, method string
	}{
		{"/grpc.health.v1.Health/Watch", "Health", "Watch"},
		{"", "unknown", "unknown"},
		{"nonsense", "unknown", "unknown"},
	}
	for _, tc := range cases {
		service, method := SplitMethod(tc.in)
		if service != tc.service || method != tc.method {
			t.Fatalf("SplitMethod(%q) = %s/%s, want %s/%s", tc.in, service, method, tc.service, tc.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
