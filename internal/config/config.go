// Package config loads guidance configuration from an optional file and
// GUIDANCE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/ascent-guidance/core"
	"github.com/signalsfoundry/ascent-guidance/internal/logging"
	"github.com/signalsfoundry/ascent-guidance/internal/observability"
	"github.com/signalsfoundry/ascent-guidance/model"
)

// EnvPrefix is prepended to every environment override, with "." mapped to
// "_": guidance.tick is read from GUIDANCE_GUIDANCE_TICK.
const EnvPrefix = "GUIDANCE"

// Vehicle backends.
const (
	BackendSim  = "sim"
	BackendKRPC = "krpc"
)

// BodyConfig selects the launch body. Non-zero constants override the preset.
type BodyConfig struct {
	Preset         string
	Mu             float64
	Radius         float64
	RotationPeriod float64
}

// GuidanceConfig carries the control-loop tunables. Zero values are
// rejected by Validate rather than defaulted: a zero heading would otherwise
// be replaced by due east.
type GuidanceConfig struct {
	Tick              time.Duration
	Countdown         int
	CountdownStep     time.Duration
	SettleDelay       time.Duration
	FinalHold         time.Duration
	Heading           float64
	StandardGravity   float64
	FuelThreshold     float64
	MinAutoStage      int
	SafeAbort         bool
	VerifyStaging     bool
	BurnTimeoutFactor float64
}

// VehicleConfig selects the vehicle connection.
type VehicleConfig struct {
	Backend  string
	KRPCHost string
	// TimeWarp paces the simulated vehicle against the wall clock. Zero
	// runs the simulation as fast as possible.
	TimeWarp float64
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string
	Format string
}

// StatusConfig configures the mission status surface.
type StatusConfig struct {
	GRPCAddr   string
	HTTPAddr   string
	StreamRate float64 // telemetry frames per second per websocket client
}

// Config is the full guidance configuration.
type Config struct {
	Body     BodyConfig
	Guidance GuidanceConfig
	Vehicle  VehicleConfig
	Log      LogConfig
	Status   StatusConfig
	Tracing  observability.TracingConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("body.preset", "kerbin")
	v.SetDefault("body.mu", 0.0)
	v.SetDefault("body.radius", 0.0)
	v.SetDefault("body.rotation_period", 0.0)

	v.SetDefault("guidance.tick", "100ms")
	v.SetDefault("guidance.countdown", 3)
	v.SetDefault("guidance.countdown_step", "1s")
	v.SetDefault("guidance.settle_delay", "1s")
	v.SetDefault("guidance.final_hold", "20s")
	v.SetDefault("guidance.heading", 90.0)
	v.SetDefault("guidance.standard_gravity", core.DefaultStandardGravity)
	v.SetDefault("guidance.fuel_threshold", 1.0)
	v.SetDefault("guidance.min_auto_stage", 2)
	v.SetDefault("guidance.safe_abort", true)
	v.SetDefault("guidance.verify_staging", true)
	v.SetDefault("guidance.burn_timeout_factor", 0.0)

	v.SetDefault("vehicle.backend", BackendSim)
	v.SetDefault("vehicle.krpc_host", "127.0.0.1")
	v.SetDefault("vehicle.time_warp", 0.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("status.grpc_addr", ":50061")
	v.SetDefault("status.http_addr", ":9090")
	v.SetDefault("status.stream_rate", 5.0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "ascent-guidance")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads configuration from path (skipped when empty) and the
// environment. The result is validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Body: BodyConfig{
			Preset:         v.GetString("body.preset"),
			Mu:             v.GetFloat64("body.mu"),
			Radius:         v.GetFloat64("body.radius"),
			RotationPeriod: v.GetFloat64("body.rotation_period"),
		},
		Guidance: GuidanceConfig{
			Tick:              v.GetDuration("guidance.tick"),
			Countdown:         v.GetInt("guidance.countdown"),
			CountdownStep:     v.GetDuration("guidance.countdown_step"),
			SettleDelay:       v.GetDuration("guidance.settle_delay"),
			FinalHold:         v.GetDuration("guidance.final_hold"),
			Heading:           v.GetFloat64("guidance.heading"),
			StandardGravity:   v.GetFloat64("guidance.standard_gravity"),
			FuelThreshold:     v.GetFloat64("guidance.fuel_threshold"),
			MinAutoStage:      v.GetInt("guidance.min_auto_stage"),
			SafeAbort:         v.GetBool("guidance.safe_abort"),
			VerifyStaging:     v.GetBool("guidance.verify_staging"),
			BurnTimeoutFactor: v.GetFloat64("guidance.burn_timeout_factor"),
		},
		Vehicle: VehicleConfig{
			Backend:  strings.ToLower(v.GetString("vehicle.backend")),
			KRPCHost: v.GetString("vehicle.krpc_host"),
			TimeWarp: v.GetFloat64("vehicle.time_warp"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Status: StatusConfig{
			GRPCAddr:   v.GetString("status.grpc_addr"),
			HTTPAddr:   v.GetString("status.http_addr"),
			StreamRate: v.GetFloat64("status.stream_rate"),
		},
		Tracing: observability.TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			Exporter:    strings.ToLower(v.GetString("tracing.exporter")),
			Endpoint:    v.GetString("tracing.endpoint"),
			ServiceName: v.GetString("tracing.service_name"),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		},
	}
}

// Validate rejects values the guidance loop cannot run with.
func (c Config) Validate() error {
	var errs []error
	if _, ok := model.BodyByName(c.Body.Preset); !ok && c.Body.Preset != "custom" {
		errs = append(errs, fmt.Errorf("body.preset: unknown body %q", c.Body.Preset))
	}
	if c.Body.Mu < 0 || c.Body.Radius < 0 || c.Body.RotationPeriod < 0 {
		errs = append(errs, errors.New("body: constants must not be negative"))
	}
	if c.Guidance.Tick <= 0 {
		errs = append(errs, errors.New("guidance.tick must be positive"))
	}
	if c.Guidance.CountdownStep <= 0 {
		errs = append(errs, errors.New("guidance.countdown_step must be positive"))
	}
	if c.Guidance.SettleDelay <= 0 {
		errs = append(errs, errors.New("guidance.settle_delay must be positive"))
	}
	if c.Guidance.Countdown <= 0 {
		errs = append(errs, errors.New("guidance.countdown must be positive"))
	}
	if c.Guidance.FinalHold <= 0 {
		errs = append(errs, errors.New("guidance.final_hold must be positive"))
	}
	if c.Guidance.Heading <= 0 || c.Guidance.Heading > 360 {
		errs = append(errs, fmt.Errorf("guidance.heading %v must be within (0, 360]; use 360 for north", c.Guidance.Heading))
	}
	if c.Guidance.StandardGravity <= 0 {
		errs = append(errs, errors.New("guidance.standard_gravity must be positive"))
	}
	if c.Guidance.BurnTimeoutFactor < 0 {
		errs = append(errs, errors.New("guidance.burn_timeout_factor must not be negative"))
	}
	switch c.Vehicle.Backend {
	case BackendSim, BackendKRPC:
	default:
		errs = append(errs, fmt.Errorf("vehicle.backend: unknown backend %q", c.Vehicle.Backend))
	}
	if c.Vehicle.TimeWarp < 0 {
		errs = append(errs, errors.New("vehicle.time_warp must not be negative"))
	}
	if c.Status.StreamRate <= 0 {
		errs = append(errs, errors.New("status.stream_rate must be positive"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within [0, 1]"))
	}
	switch c.Tracing.Exporter {
	case "stdout", "otlp", "otlpgrpc", "":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter: unsupported exporter %q", c.Tracing.Exporter))
	}
	return errors.Join(errs...)
}

// CelestialBody resolves the preset and applies any explicit overrides. A
// "custom" preset takes its constants from the overrides alone.
func (c Config) CelestialBody() model.CelestialBody {
	body, ok := model.BodyByName(c.Body.Preset)
	if !ok {
		body = model.CelestialBody{Name: c.Body.Preset}
	}
	if c.Body.Mu > 0 {
		body.Mu = c.Body.Mu
	}
	if c.Body.Radius > 0 {
		body.Radius = c.Body.Radius
	}
	if c.Body.RotationPeriod > 0 {
		body.RotationPeriod = c.Body.RotationPeriod
	}
	return body
}

// SequencerConfig maps the guidance settings onto core component configs.
func (c Config) SequencerConfig() core.SequencerConfig {
	g := c.Guidance
	seq := core.DefaultSequencerConfig()

	seq.Ascent.Tick = g.Tick
	seq.Ascent.SettleDelay = g.SettleDelay
	seq.Ascent.Heading = g.Heading
	seq.Ascent.FuelThreshold = g.FuelThreshold
	seq.Ascent.MinAutoStage = g.MinAutoStage
	seq.Ascent.VerifyStaging = g.VerifyStaging

	seq.Burn.Tick = g.Tick
	seq.Burn.Heading = g.Heading
	seq.Burn.TimeoutFactor = g.BurnTimeoutFactor

	seq.Countdown = g.Countdown
	seq.CountdownStep = g.CountdownStep
	seq.FinalHold = g.FinalHold
	seq.StandardGravity = g.StandardGravity
	seq.SafeAbort = g.SafeAbort
	return seq.ApplyDefaults()
}

// LoggingConfig returns the logger settings.
func (c Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}
