package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/ascent-guidance/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Body.Preset != "kerbin" || cfg.CelestialBody() != model.Kerbin {
		t.Fatalf("default body = %+v", cfg.CelestialBody())
	}
	g := cfg.Guidance
	if g.Tick != 100*time.Millisecond || g.Countdown != 3 || g.CountdownStep != time.Second ||
		g.SettleDelay != time.Second || g.FinalHold != 20*time.Second {
		t.Fatalf("unexpected timing defaults: %+v", g)
	}
	if g.Heading != 90 || g.StandardGravity != 9.82 || g.FuelThreshold != 1 || g.MinAutoStage != 2 {
		t.Fatalf("unexpected guidance defaults: %+v", g)
	}
	if !g.SafeAbort || !g.VerifyStaging || g.BurnTimeoutFactor != 0 {
		t.Fatalf("unexpected hardening defaults: %+v", g)
	}
	if cfg.Vehicle.Backend != BackendSim {
		t.Fatalf("backend = %q", cfg.Vehicle.Backend)
	}
	if cfg.Status.GRPCAddr != ":50061" || cfg.Status.HTTPAddr != ":9090" || cfg.Status.StreamRate != 5 {
		t.Fatalf("unexpected status defaults: %+v", cfg.Status)
	}
	if cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 1 {
		t.Fatalf("unexpected tracing defaults: %+v", cfg.Tracing)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guidance.yaml")
	content := `
body:
  preset: earth
guidance:
  tick: 50ms
  countdown: 5
  burn_timeout_factor: 3
vehicle:
  backend: krpc
  krpc_host: 10.0.0.7
status:
  stream_rate: 2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GUIDANCE_GUIDANCE_COUNTDOWN", "7")
	t.Setenv("GUIDANCE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CelestialBody() != model.Earth {
		t.Fatalf("body = %+v", cfg.CelestialBody())
	}
	if cfg.Guidance.Tick != 50*time.Millisecond || cfg.Guidance.BurnTimeoutFactor != 3 {
		t.Fatalf("file values not applied: %+v", cfg.Guidance)
	}
	if cfg.Guidance.Countdown != 7 {
		t.Fatalf("env should override file, countdown = %d", cfg.Guidance.Countdown)
	}
	if cfg.Log.Level != "debug" || cfg.LoggingConfig().Level != "debug" {
		t.Fatalf("env log level not applied: %+v", cfg.Log)
	}
	if cfg.Vehicle.Backend != BackendKRPC || cfg.Vehicle.KRPCHost != "10.0.0.7" {
		t.Fatalf("vehicle = %+v", cfg.Vehicle)
	}
	if cfg.Status.StreamRate != 2 {
		t.Fatalf("stream rate = %v", cfg.Status.StreamRate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown body", func(c *Config) { c.Body.Preset = "pluto" }, "body.preset"},
		{"negative mu", func(c *Config) { c.Body.Mu = -1 }, "body"},
		{"zero tick", func(c *Config) { c.Guidance.Tick = 0 }, "guidance.tick"},
		{"zero settle", func(c *Config) { c.Guidance.SettleDelay = 0 }, "guidance.settle_delay"},
		{"zero countdown step", func(c *Config) { c.Guidance.CountdownStep = 0 }, "guidance.countdown_step"},
		{"zero countdown", func(c *Config) { c.Guidance.Countdown = 0 }, "guidance.countdown"},
		{"zero final hold", func(c *Config) { c.Guidance.FinalHold = 0 }, "guidance.final_hold"},
		{"zero heading", func(c *Config) { c.Guidance.Heading = 0 }, "guidance.heading"},
		{"heading past north", func(c *Config) { c.Guidance.Heading = 361 }, "guidance.heading"},
		{"bad backend", func(c *Config) { c.Vehicle.Backend = "serial" }, "vehicle.backend"},
		{"negative warp", func(c *Config) { c.Vehicle.TimeWarp = -1 }, "vehicle.time_warp"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "tracing.sample_ratio"},
		{"exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"stream rate", func(c *Config) { c.Status.StreamRate = 0 }, "status.stream_rate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tc.want)
			}
		})
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestNorthHeadingReachesCore(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Guidance.Heading = 360
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	seq := cfg.SequencerConfig()
	if seq.Ascent.Heading != 360 || seq.Burn.Heading != 360 {
		t.Fatalf("heading lost: ascent %v burn %v", seq.Ascent.Heading, seq.Burn.Heading)
	}
}

func TestCelestialBodyOverrides(t *testing.T) {
	cfg := Config{Body: BodyConfig{Preset: "kerbin", RotationPeriod: 6 * 3600 * 2}}
	body := cfg.CelestialBody()
	if body.Mu != model.Kerbin.Mu || body.RotationPeriod != 43200 {
		t.Fatalf("override not applied: %+v", body)
	}

	custom := Config{Body: BodyConfig{Preset: "custom", Mu: 1e12, Radius: 1e5, RotationPeriod: 1e4}}
	body = custom.CelestialBody()
	if body.Name != "custom" || body.Mu != 1e12 || body.Radius != 1e5 || body.RotationPeriod != 1e4 {
		t.Fatalf("custom body = %+v", body)
	}
}

func TestSequencerConfigMapping(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Guidance.Tick = 20 * time.Millisecond
	cfg.Guidance.MinAutoStage = 3
	cfg.Guidance.BurnTimeoutFactor = 2
	cfg.Guidance.SafeAbort = false

	seq := cfg.SequencerConfig()
	if seq.Ascent.Tick != 20*time.Millisecond || seq.Burn.Tick != 20*time.Millisecond {
		t.Fatalf("tick not propagated: %+v / %+v", seq.Ascent, seq.Burn)
	}
	if seq.Ascent.MinAutoStage != 3 || seq.Burn.TimeoutFactor != 2 || seq.SafeAbort {
		t.Fatalf("unexpected mapping: %+v", seq)
	}
	if seq.FinalHold != 20*time.Second || seq.Countdown != 3 {
		t.Fatalf("sequencer timings: %+v", seq)
	}
}
