package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/pathing"
)

const (
	CaptureConfigFile  = "inverter_capture.toml"
	AnalyzerConfigFile = "inverter_analyzer.toml"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver: "sqlite",
		Path:   pathing.GetReadingDbPath(),
	}
}

func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		LogLevel:             "info",
		Source:               "gateway",
		PollIntervalSecs:     60,
		SummaryIntervalSecs:  300,
		CycleTimeoutSecs:     45,
		FetchRetryBaseSecs:   10,
		FetchRetryMaxSecs:    300,
		ReloginAfterFailures: 3,
		StoreWriteAttempts:   3,
		Store:                DefaultStoreConfig(),
		Gateway: GatewayConfig{
			URL:         "https://envoy.local",
			TimeoutSecs: 30,
			InsecureTLS: true,
		},
		Modbus: ModbusConfig{
			Port:     502,
			Register: 32080,
		},
		HTTP: HTTPConfig{
			ListenAddress: "0.0.0.0",
			ListenPort:    9040,
		},
		MQTT: MQTTConfig{
			Port:     1883,
			ClientId: "inverter-capture",
			DeviceId: "inverter_capture",
		},
		Kafka: KafkaConfig{
			Topic: "inverter-readings",
		},
	}
}

func DefaultAnalyzerConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		LogLevel: "info",
		Workers:  4,
		Store:    DefaultStoreConfig(),
		Fit: FitConfig{
			MaxContinuousWatts:  349,
			MinFitWatts:         75,
			CloudThresholdWatts: 5,
			MinDataPoints:       50,
			MaxStartPower:       20,
			MaxEndPower:         0,
		},
	}
}

// LoadCaptureConfig reads the capture config from configPath, or from the
// config dir when empty. A missing file is created with defaults.
func LoadCaptureConfig(configPath string) (*CaptureConfig, error) {
	if configPath == "" {
		configPath = filepath.Join(pathing.GetConfigDir(), CaptureConfigFile)
	}
	cfg, err := loadOrCreate(configPath, DefaultCaptureConfig())
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadAnalyzerConfig reads the analyzer config from configPath, or from the
// config dir when empty. A missing file is created with defaults.
func LoadAnalyzerConfig(configPath string) (*AnalyzerConfig, error) {
	if configPath == "" {
		configPath = filepath.Join(pathing.GetConfigDir(), AnalyzerConfigFile)
	}
	cfg, err := loadOrCreate(configPath, DefaultAnalyzerConfig())
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func loadOrCreate[T any](configPath string, defaults *T) (*T, error) {
	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return nil, err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}

	// Load existing config on top of the defaults so new keys get sane values
	if _, err := toml.DecodeFile(configPath, defaults); err != nil {
		return nil, fmt.Errorf("decode %s: %w", configPath, err)
	}
	return defaults, nil
}

func (c *CaptureConfig) Validate() error {
	var errs []error
	if c.PollIntervalSecs <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval_secs must be positive, got %d", c.PollIntervalSecs))
	}
	if c.SummaryIntervalSecs <= 0 {
		errs = append(errs, fmt.Errorf("summary_interval_secs must be positive, got %d", c.SummaryIntervalSecs))
	}
	if c.CycleTimeoutSecs <= 0 {
		errs = append(errs, fmt.Errorf("cycle_timeout_secs must be positive, got %d", c.CycleTimeoutSecs))
	}
	if c.FetchRetryBaseSecs <= 0 || c.FetchRetryMaxSecs < c.FetchRetryBaseSecs {
		errs = append(errs, fmt.Errorf("fetch retry window %ds..%ds is invalid", c.FetchRetryBaseSecs, c.FetchRetryMaxSecs))
	}
	if c.StoreWriteAttempts < 1 {
		errs = append(errs, fmt.Errorf("store_write_attempts must be at least 1, got %d", c.StoreWriteAttempts))
	}
	switch c.Source {
	case "gateway":
		if c.Gateway.URL == "" {
			errs = append(errs, errors.New("gateway.url is required for the gateway source"))
		}
	case "modbus":
		if c.Modbus.Host == "" || c.Modbus.Port == 0 || c.Modbus.Serial == 0 {
			errs = append(errs, errors.New("modbus.host, modbus.port and modbus.serial are required for the modbus source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	if err := c.Store.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (a *AnalyzerConfig) Validate() error {
	var errs []error
	if a.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", a.Workers))
	}
	if a.Fit.MaxContinuousWatts <= a.Fit.MinFitWatts {
		errs = append(errs, fmt.Errorf("max_continuous_watts (%v) must exceed min_fit_watts (%v)",
			a.Fit.MaxContinuousWatts, a.Fit.MinFitWatts))
	}
	if a.Fit.CloudThresholdWatts < 0 {
		errs = append(errs, fmt.Errorf("cloud_threshold_watts must not be negative, got %v", a.Fit.CloudThresholdWatts))
	}
	if a.Fit.MinDataPoints < 3 {
		errs = append(errs, fmt.Errorf("min_data_points must be at least 3, got %d", a.Fit.MinDataPoints))
	}
	if a.Latitude < -90 || a.Latitude > 90 || a.Longitude < -180 || a.Longitude > 180 {
		errs = append(errs, fmt.Errorf("latitude/longitude out of range: %v, %v", a.Latitude, a.Longitude))
	}
	if err := a.Store.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (s *StoreConfig) Validate() error {
	switch s.Driver {
	case "sqlite":
		if s.Path == "" {
			return errors.New("store.path is required for sqlite")
		}
	case "mysql", "postgres":
		if s.Host == "" || s.Database == "" {
			return fmt.Errorf("store.host and store.database are required for %s", s.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", s.Driver)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("store.timezone: %w", err)
	}
	return nil
}
