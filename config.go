package track

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the full set of run parameters named in spec.md §6, loaded
// eagerly and validated before the measurement stream opens.
type Config struct {
	TrackMode       int
	FilterOption    FilterVariant
	AssociationType AssociationType

	MaxTimeDiff      float64
	CheckInterval    float64
	DopplerThreshold float64
	RangeThreshold   float64
	GateThreshold    float64
	PlantNoise       float64
	TrackTimeout     float64

	InputPath        string
	DetailedLogPath  string
	TrackSummaryPath string
}

// AssociationType selects the association algorithm used per group.
type AssociationType uint8

const (
	JPDA AssociationType = iota
	Munkres
)

func (a AssociationType) String() string {
	if a == Munkres {
		return "Munkres"
	}
	return "JPDA"
}

// defaultConfig mirrors the numeric defaults in spec.md §6.
func defaultConfig() Config {
	return Config{
		TrackMode:        3,
		FilterOption:     CV,
		AssociationType:  JPDA,
		MaxTimeDiff:      0.050,
		CheckInterval:    0.0005,
		DopplerThreshold: 100,
		RangeThreshold:   100,
		GateThreshold:    GateThresholdChiSquare3,
		PlantNoise:       20,
		TrackTimeout:     1.0,
	}
}

// LoadConfig reads configuration from path via viper (TOML/YAML/JSON are
// all auto-detected by extension, mirroring the teacher's config.go use of
// viper.SetConfigName/AddConfigPath/ReadInConfig) and validates every
// selector eagerly, per spec.md §7's fail-fast-before-stream-opens policy.
// An empty path returns defaultConfig() unmodified.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if v.IsSet("track_mode") {
		cfg.TrackMode = v.GetInt("track_mode")
	}
	if v.IsSet("filter_option") {
		variant, err := parseFilterOption(v.GetString("filter_option"))
		if err != nil {
			return Config{}, err
		}
		cfg.FilterOption = variant
	}
	if v.IsSet("association_type") {
		assoc, err := parseAssociationType(v.GetString("association_type"))
		if err != nil {
			return Config{}, err
		}
		cfg.AssociationType = assoc
	}
	if v.IsSet("max_time_diff") {
		cfg.MaxTimeDiff = v.GetFloat64("max_time_diff")
	}
	if v.IsSet("check_interval") {
		cfg.CheckInterval = v.GetFloat64("check_interval")
	}
	if v.IsSet("doppler_threshold") {
		cfg.DopplerThreshold = v.GetFloat64("doppler_threshold")
	}
	if v.IsSet("range_threshold") {
		cfg.RangeThreshold = v.GetFloat64("range_threshold")
	}
	if v.IsSet("gate_threshold") {
		cfg.GateThreshold = v.GetFloat64("gate_threshold")
	}
	if v.IsSet("plant_noise") {
		cfg.PlantNoise = v.GetFloat64("plant_noise")
	}
	if v.IsSet("track_timeout") {
		cfg.TrackTimeout = v.GetFloat64("track_timeout")
	}
	if v.IsSet("input_path") {
		cfg.InputPath = v.GetString("input_path")
	}
	if v.IsSet("detailed_log_path") {
		cfg.DetailedLogPath = v.GetString("detailed_log_path")
	}
	if v.IsSet("track_summary_path") {
		cfg.TrackSummaryPath = v.GetString("track_summary_path")
	}

	if _, ok := LadderFor(cfg.TrackMode); !ok {
		return Config{}, &ConfigError{Field: "track_mode", Value: cfg.TrackMode}
	}
	return cfg, nil
}

func parseFilterOption(s string) (FilterVariant, error) {
	switch s {
	case "CV":
		return CV, nil
	case "CA":
		return CA, nil
	default:
		return 0, &ConfigError{Field: "filter_option", Value: s}
	}
}

func parseAssociationType(s string) (AssociationType, error) {
	switch s {
	case "JPDA":
		return JPDA, nil
	case "Munkres":
		return Munkres, nil
	default:
		return 0, &ConfigError{Field: "association_type", Value: s}
	}
}
