package docksmaker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/viper"
)

// ConfigEnv names the environment variable holding the directory of docksmaker.toml.
const ConfigEnv = "DOCKSMAKER_CONFIG"

// Config is the engine configuration. Vectors are given in km and km/s, as in DOCKS files.
type Config struct {
	General    GeneralConfig     `mapstructure:"general"`
	Bodies     map[string]Body   `mapstructure:"bodies"`
	Ephemeris  EphemerisConfig   `mapstructure:"ephemeris"`
	Perturbers []PerturberConfig `mapstructure:"perturbers"`
	Transfer   TransferConfig    `mapstructure:"transfer"`
	Propagator PropagatorConfig  `mapstructure:"propagator"`
	Lambert    LambertConfig     `mapstructure:"lambert"`
	Shooting   ShootingConfig    `mapstructure:"shooting"`
	MonteCarlo MonteCarloConfig  `mapstructure:"montecarlo"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

// GeneralConfig holds the epoch and output settings.
type GeneralConfig struct {
	Epoch       string `mapstructure:"epoch"` // DOCKS date of the departure.
	OutputDir   string `mapstructure:"output_dir"`
	CentralBody string `mapstructure:"central_body"`
	Debug       bool   `mapstructure:"debug"`
}

// Body overrides or adds an entry of the body table (SI units).
type Body struct {
	Mu     float64 `mapstructure:"mu"`
	Radius float64 `mapstructure:"radius"`
}

// EphemerisConfig locates the VSOP87 series.
type EphemerisConfig struct {
	VSOP87Dir string `mapstructure:"vsop87_dir"`
}

// PerturberConfig is a perturbing body, either at a fixed position (km) or from VSOP87.
type PerturberConfig struct {
	Name     string    `mapstructure:"name"`
	Source   string    `mapstructure:"source"` // "static" (default) or "vsop87".
	Position []float64 `mapstructure:"position"`
}

// TransferConfig is the nominal transfer: departure state and target position, in km and km/s.
type TransferConfig struct {
	R0     []float64 `mapstructure:"r0"`
	V0     []float64 `mapstructure:"v0"`
	Target []float64 `mapstructure:"target"`
	TOF    float64   `mapstructure:"tof"` // Seconds
}

// PropagatorConfig sets the integrator tolerances and the field options.
type PropagatorConfig struct {
	RelTol          float64 `mapstructure:"rtol"`
	AbsTol          float64 `mapstructure:"atol"`
	MinStep         float64 `mapstructure:"min_step"`
	MaxStep         float64 `mapstructure:"max_step"`
	MaxSteps        int     `mapstructure:"max_steps"`
	IndirectTerm    bool    `mapstructure:"indirect_term"`
	StrictEphemeris bool    `mapstructure:"strict_ephemeris"`
}

// LambertConfig selects the Lambert branch.
type LambertConfig struct {
	Branch string `mapstructure:"branch"`
}

// ShootingConfig sets the single shooting corrector.
type ShootingConfig struct {
	Tolerance     float64 `mapstructure:"tolerance"` // Meters
	MaxIterations int     `mapstructure:"max_iterations"`
	Gain          float64 `mapstructure:"gain"`
	Method        string  `mapstructure:"method"`
	Perturbation  float64 `mapstructure:"perturbation"` // m/s
}

// SpreadConfig holds the per component spreads of the perturbation samplers, in km and km/s.
type SpreadConfig struct {
	Position []float64 `mapstructure:"position"`
	Velocity []float64 `mapstructure:"velocity"`
}

// MonteCarloConfig sets the Monte-Carlo search.
type MonteCarloConfig struct {
	Samples        int                  `mapstructure:"samples"`
	Seed           uint64               `mapstructure:"seed"`
	Workers        int                  `mapstructure:"workers"`
	MultiFidelity  bool                 `mapstructure:"multifidelity"`
	RefineFraction float64              `mapstructure:"refine_fraction"`
	Scoring        string               `mapstructure:"scoring"`
	Improvement    float64              `mapstructure:"improvement"` // Meters
	LogAll         bool                 `mapstructure:"log_all"`
	MaxDuration    time.Duration        `mapstructure:"max_duration"`
	Sampler        string               `mapstructure:"sampler"` // delta_v, perturbation or elements.
	Ranges         map[string][]float64 `mapstructure:"ranges"`  // Element ranges: a (km), e, i, raan, aop, nu (degrees).
	LogRanges      []string             `mapstructure:"log_ranges"`
	Spreads        SpreadConfig         `mapstructure:"spreads"`
	Distribution   string               `mapstructure:"distribution"`
	Sink           string               `mapstructure:"sink"` // none, csv or sqlite.
	SinkPath       string               `mapstructure:"sink_path"`
	PerSampleFiles bool                 `mapstructure:"per_sample_files"`
}

// MetricsConfig sets the address of the Prometheus endpoint, disabled if empty.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.epoch", "2025-01-01T00:00:00")
	v.SetDefault("general.output_dir", ".")
	v.SetDefault("general.central_body", "sun")
	v.SetDefault("general.debug", false)
	v.SetDefault("ephemeris.vsop87_dir", "")
	v.SetDefault("transfer.tof", 0)
	tol := DefaultTolerances()
	v.SetDefault("propagator.rtol", tol.RelTol)
	v.SetDefault("propagator.atol", tol.AbsTol)
	v.SetDefault("propagator.min_step", tol.MinStep)
	v.SetDefault("propagator.max_step", tol.MaxStep)
	v.SetDefault("propagator.max_steps", tol.MaxSteps)
	v.SetDefault("propagator.indirect_term", false)
	v.SetDefault("propagator.strict_ephemeris", false)
	v.SetDefault("lambert.branch", Auto.String())
	v.SetDefault("shooting.tolerance", 1e-3)
	v.SetDefault("shooting.max_iterations", 50)
	v.SetDefault("shooting.gain", 1.0)
	v.SetDefault("shooting.method", Proportional.String())
	v.SetDefault("shooting.perturbation", 1e-3)
	mc := DefaultSearchConfig()
	v.SetDefault("montecarlo.samples", mc.Samples)
	v.SetDefault("montecarlo.seed", mc.Seed)
	v.SetDefault("montecarlo.workers", 0)
	v.SetDefault("montecarlo.multifidelity", false)
	v.SetDefault("montecarlo.refine_fraction", mc.RefineFraction)
	v.SetDefault("montecarlo.scoring", mc.Scoring.String())
	v.SetDefault("montecarlo.improvement", 0)
	v.SetDefault("montecarlo.log_all", false)
	v.SetDefault("montecarlo.max_duration", "0s")
	v.SetDefault("montecarlo.sampler", "delta_v")
	v.SetDefault("montecarlo.distribution", Uniform.String())
	v.SetDefault("montecarlo.sink", "none")
	v.SetDefault("montecarlo.sink_path", "")
	v.SetDefault("montecarlo.per_sample_files", false)
	v.SetDefault("metrics.listen", "")
}

// DefaultConfig returns the configuration with every key at its default.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		panic(fmt.Errorf("invalid default configuration: %s", err))
	}
	return c
}

// LoadConfig reads a TOML configuration file. An empty path reads docksmaker.toml from the directory
// named by DOCKSMAKER_CONFIG; if that is unset too, the defaults are returned.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if path == "" {
		if dir := os.Getenv(ConfigEnv); dir != "" {
			path = filepath.Join(dir, "docksmaker.toml")
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return c, c.Validate()
}

// Validate checks the enumerations and the epoch.
func (c Config) Validate() error {
	if _, err := c.Epoch(); err != nil {
		return err
	}
	if _, err := ParseBranch(c.Lambert.Branch); err != nil {
		return newError("config", InvalidInput, err)
	}
	if _, err := ParseShootingMethod(c.Shooting.Method); err != nil {
		return newError("config", InvalidInput, err)
	}
	if _, err := ParseScoring(c.MonteCarlo.Scoring); err != nil {
		return newError("config", InvalidInput, err)
	}
	if _, err := ParseDistribution(c.MonteCarlo.Distribution); err != nil {
		return newError("config", InvalidInput, err)
	}
	switch c.MonteCarlo.Sink {
	case "", "none", "csv", "sqlite":
	default:
		return newError("config", InvalidInput, fmt.Errorf("unknown sink '%s'", c.MonteCarlo.Sink))
	}
	return nil
}

// Log writes the configuration at the debug level.
func (c Config) Log(logger log.Logger) {
	logger = level.Debug(log.With(orNop(logger), "subsys", "conf"))
	logger.Log("epoch", c.General.Epoch, "central", c.General.CentralBody, "perturbers", len(c.Perturbers), "output", c.General.OutputDir)
	logger.Log("rtol", c.Propagator.RelTol, "atol", c.Propagator.AbsTol, "max_steps", c.Propagator.MaxSteps)
	logger.Log("shooting", c.Shooting.Method, "tolerance", c.Shooting.Tolerance, "gain", c.Shooting.Gain)
	logger.Log("samples", c.MonteCarlo.Samples, "seed", c.MonteCarlo.Seed, "sampler", c.MonteCarlo.Sampler, "scoring", c.MonteCarlo.Scoring)
}

// Epoch returns the departure epoch.
func (c Config) Epoch() (time.Time, error) {
	t, err := time.Parse(DateFormat, c.General.Epoch)
	if err != nil {
		return t, newError("config", InvalidInput, err, "epoch", c.General.Epoch)
	}
	return t, nil
}

// Arrival returns the arrival epoch, departure plus the time of flight.
func (c Config) Arrival() (time.Time, error) {
	t, err := c.Epoch()
	if err != nil {
		return t, err
	}
	return t.Add(Seconds(c.Transfer.TOF)), nil
}

// BodyTable returns the default bodies with the configured overrides.
func (c Config) BodyTable() (BodyTable, error) {
	table := DefaultBodies()
	for name, b := range c.Bodies {
		obj, err := NewCelestialObject(name, b.Mu, b.Radius)
		if err != nil {
			return nil, err
		}
		table.Set(obj)
	}
	return table, nil
}

func vectorKM(name string, x []float64, scale float64) (Vector, error) {
	if len(x) != 3 {
		return Vector{}, newError("config", InvalidInput, fmt.Errorf("%s must have three components, got %d", name, len(x)))
	}
	v := Vector{x[0], x[1], x[2]}.Scale(scale)
	if !v.IsFinite() {
		return Vector{}, newError("config", InvalidInput, fmt.Errorf("%s is not finite", name))
	}
	return v, nil
}

// GravityField builds the field of the central body and the configured perturbers.
func (c Config) GravityField() (GravityField, error) {
	table, err := c.BodyTable()
	if err != nil {
		return GravityField{}, err
	}
	central, err := table.Get(c.General.CentralBody)
	if err != nil {
		return GravityField{}, newError("config", InvalidInput, err)
	}
	field := GravityField{Central: central, IndirectTerm: c.Propagator.IndirectTerm, StrictEphemeris: c.Propagator.StrictEphemeris}
	for _, pc := range c.Perturbers {
		obj, err := table.Get(pc.Name)
		if err != nil {
			return field, newError("config", InvalidInput, err)
		}
		var eph Ephemeris
		switch strings.ToLower(pc.Source) {
		case "", "static":
			pos, err := vectorKM("perturber "+pc.Name, pc.Position, 1e3)
			if err != nil {
				return field, err
			}
			eph = StaticPosition(pos)
		case "vsop87":
			eph, err = c.vsop87(pc.Name)
			if err != nil {
				return field, err
			}
		default:
			return field, newError("config", InvalidInput, fmt.Errorf("unknown ephemeris source '%s'", pc.Source))
		}
		att, err := NewAttractor(obj, eph)
		if err != nil {
			return field, err
		}
		field.Perturbers = append(field.Perturbers, att)
	}
	return field, field.Validate()
}

func (c Config) vsop87(name string) (Ephemeris, error) {
	if c.Ephemeris.VSOP87Dir == "" {
		return nil, newError("config", InvalidInput, fmt.Errorf("ephemeris.vsop87_dir is required for %s", name))
	}
	epoch, err := c.Epoch()
	if err != nil {
		return nil, err
	}
	body, err := LoadVSOP87(name, c.Ephemeris.VSOP87Dir)
	if err != nil {
		return nil, newError("config", InvalidInput, err)
	}
	center, err := LoadVSOP87(c.General.CentralBody, c.Ephemeris.VSOP87Dir)
	if err != nil {
		return nil, newError("config", InvalidInput, err)
	}
	return VSOP87{Body: body, Center: center, Epoch: epoch}, nil
}

// Tolerances returns the integrator tolerances.
func (c Config) Tolerances() Tolerances {
	p := c.Propagator
	return Tolerances{RelTol: p.RelTol, AbsTol: p.AbsTol, MinStep: p.MinStep, MaxStep: p.MaxStep, MaxSteps: p.MaxSteps}
}

// NewPropagator builds the propagator in the configured field.
func (c Config) NewPropagator(logger log.Logger) (*Propagator, error) {
	field, err := c.GravityField()
	if err != nil {
		return nil, err
	}
	p := NewPropagator(field, logger)
	p.Tolerances = c.Tolerances()
	return p, nil
}

// NewShooter builds the configured shooting corrector.
func (c Config) NewShooter(p *Propagator, logger log.Logger) (*Shooter, error) {
	method, err := ParseShootingMethod(c.Shooting.Method)
	if err != nil {
		return nil, newError("config", InvalidInput, err)
	}
	s := NewShooter(p, logger)
	s.Tolerance = c.Shooting.Tolerance
	s.MaxIterations = c.Shooting.MaxIterations
	s.Gain = c.Shooting.Gain
	s.Method = method
	s.Perturbation = c.Shooting.Perturbation
	return s, nil
}

// Branch returns the configured Lambert branch.
func (c Config) Branch() (Branch, error) {
	return ParseBranch(c.Lambert.Branch)
}

// Departure returns the configured departure state in m and m/s.
func (c Config) Departure() (State, error) {
	r0, err := vectorKM("transfer.r0", c.Transfer.R0, 1e3)
	if err != nil {
		return State{}, err
	}
	v0, err := vectorKM("transfer.v0", c.Transfer.V0, 1e3)
	if err != nil {
		return State{}, err
	}
	return State{r0, v0}, nil
}

// Target returns the configured target position in m.
func (c Config) Target() (Vector, error) {
	return vectorKM("transfer.target", c.Transfer.Target, 1e3)
}

// NewSampler builds the configured candidate sampler.
func (c Config) NewSampler() (Sampler, error) {
	mc := c.MonteCarlo
	dist, err := ParseDistribution(mc.Distribution)
	if err != nil {
		return nil, newError("config", InvalidInput, err)
	}
	switch mc.Sampler {
	case "delta_v":
		base, err := c.Departure()
		if err != nil {
			return nil, err
		}
		spread, err := vectorKM("montecarlo.spreads.velocity", mc.Spreads.Velocity, 1e3)
		if err != nil {
			return nil, err
		}
		s := VelocityDeltaSampler{Base: base, Spread: spread, Distribution: dist}
		return s, s.Validate()
	case "perturbation":
		mean, err := c.Departure()
		if err != nil {
			return nil, err
		}
		pos, err := vectorKM("montecarlo.spreads.position", mc.Spreads.Position, 1e3)
		if err != nil {
			return nil, err
		}
		vel, err := vectorKM("montecarlo.spreads.velocity", mc.Spreads.Velocity, 1e3)
		if err != nil {
			return nil, err
		}
		s := PerturbationSampler{Mean: mean, PositionSpread: pos, VelocitySpread: vel, Distribution: dist}
		return s, s.Validate()
	case "elements":
		table, err := c.BodyTable()
		if err != nil {
			return nil, err
		}
		central, err := table.Get(c.General.CentralBody)
		if err != nil {
			return nil, newError("config", InvalidInput, err)
		}
		s := ElementSampler{Mu: central.GM()}
		for _, r := range []struct {
			key   string
			dst   *Range
			scale float64
		}{
			{"a", &s.A, 1e3}, {"e", &s.E, 1}, {"i", &s.I, 1},
			{"raan", &s.RAAN, 1}, {"aop", &s.AoP, 1}, {"nu", &s.Nu, 1},
		} {
			bounds, ok := mc.Ranges[r.key]
			switch {
			case !ok:
			case len(bounds) == 1:
				*r.dst = Fixed(bounds[0] * r.scale)
			case len(bounds) == 2:
				*r.dst = Range{Min: bounds[0] * r.scale, Max: bounds[1] * r.scale}
			default:
				return nil, newError("config", InvalidInput, fmt.Errorf("range %s must have one or two values", r.key))
			}
			for _, l := range mc.LogRanges {
				if l == r.key {
					r.dst.Log = true
				}
			}
		}
		return s, s.Validate()
	default:
		return nil, newError("config", InvalidInput, fmt.Errorf("unknown sampler '%s'", mc.Sampler))
	}
}

// SearchConfig returns the Monte-Carlo search settings. The sink and metrics are left to the caller.
func (c Config) SearchConfig(logger log.Logger) (SearchConfig, error) {
	mc := c.MonteCarlo
	scoring, err := ParseScoring(mc.Scoring)
	if err != nil {
		return SearchConfig{}, newError("config", InvalidInput, err)
	}
	return SearchConfig{
		Samples:        mc.Samples,
		Seed:           mc.Seed,
		Workers:        mc.Workers,
		Scoring:        scoring,
		MultiFidelity:  mc.MultiFidelity,
		RefineFraction: mc.RefineFraction,
		Improvement:    mc.Improvement,
		LogAll:         mc.LogAll,
		MaxDuration:    mc.MaxDuration,
		Logger:         logger,
	}, nil
}
