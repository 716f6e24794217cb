package config

import "time"

type StoreConfig struct {
	// sqlite, mysql or postgres
	Driver   string `toml:"driver"`
	Path     string `toml:"path"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	// IANA name, empty means the host's local zone
	Timezone string `toml:"timezone"`
}

type GatewayConfig struct {
	URL         string `toml:"url"`
	Token       string `toml:"token"`
	TimeoutSecs int    `toml:"timeout_secs"`
	// Envoy gateways serve a self-signed certificate
	InsecureTLS bool `toml:"insecure_tls"`
}

type ModbusConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	SlaveId  byte   `toml:"slave_id"`
	Register uint16 `toml:"register"`
	Serial   uint64 `toml:"serial"`
}

type HTTPConfig struct {
	ListenAddress string `toml:"listen_address"`
	// 0 disables the status/feed server
	ListenPort int `toml:"listen_port"`
}

type MQTTConfig struct {
	// Empty disables Home Assistant publishing
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	ClientId string `toml:"client_id"`
	DeviceId string `toml:"device_id"`
}

type KafkaConfig struct {
	// Empty disables the kafka sink
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type CaptureConfig struct {
	LogLevel             string `toml:"log_level"`
	Source               string `toml:"source"`
	PollIntervalSecs     int    `toml:"poll_interval_secs"`
	SummaryIntervalSecs  int    `toml:"summary_interval_secs"`
	CycleTimeoutSecs     int    `toml:"cycle_timeout_secs"`
	FetchRetryBaseSecs   int    `toml:"fetch_retry_base_secs"`
	FetchRetryMaxSecs    int    `toml:"fetch_retry_max_secs"`
	ReloginAfterFailures int    `toml:"relogin_after_failures"`
	StoreWriteAttempts   int    `toml:"store_write_attempts"`

	Store   StoreConfig   `toml:"store"`
	Gateway GatewayConfig `toml:"gateway"`
	Modbus  ModbusConfig  `toml:"modbus"`
	HTTP    HTTPConfig    `toml:"http"`
	MQTT    MQTTConfig    `toml:"mqtt"`
	Kafka   KafkaConfig   `toml:"kafka"`
}

type FitConfig struct {
	MaxContinuousWatts  float64 `toml:"max_continuous_watts"`
	MinFitWatts         float64 `toml:"min_fit_watts"`
	CloudThresholdWatts float64 `toml:"cloud_threshold_watts"`
	MinDataPoints       int     `toml:"min_data_points"`
	MaxStartPower       uint16  `toml:"max_start_power"`
	MaxEndPower         uint16  `toml:"max_end_power"`
}

type AnalyzerConfig struct {
	LogLevel  string  `toml:"log_level"`
	Workers   int     `toml:"workers"`
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`

	Store StoreConfig `toml:"store"`
	Fit   FitConfig   `toml:"fit"`
}

func (c *CaptureConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

func (c *CaptureConfig) SummaryInterval() time.Duration {
	return time.Duration(c.SummaryIntervalSecs) * time.Second
}

func (c *CaptureConfig) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutSecs) * time.Second
}

func (c *CaptureConfig) FetchRetryBase() time.Duration {
	return time.Duration(c.FetchRetryBaseSecs) * time.Second
}

func (c *CaptureConfig) FetchRetryMax() time.Duration {
	return time.Duration(c.FetchRetryMaxSecs) * time.Second
}

func (g *GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// Location resolves the zone report timestamps are stored and grouped in.
func (s *StoreConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// HasLocation reports whether solar noon annotation is possible.
func (a *AnalyzerConfig) HasLocation() bool {
	return a.Latitude != 0 || a.Longitude != 0
}
