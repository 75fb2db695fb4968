package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML layout of ALERT_CONFIG_FILE. Every field maps to
// one environment variable, which overrides it when set.
type fileConfig struct {
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Source   string `yaml:"source"`
	GEOGloWS struct {
		URL       string `yaml:"url"`
		CacheSize int    `yaml:"cache_size"`
		CacheTTL  string `yaml:"cache_ttl"`
	} `yaml:"geoglows"`
	HydroShare struct {
		URL      string `yaml:"url"`
		Resource string `yaml:"resource"`
	} `yaml:"hydroshare"`
	Fetch struct {
		MaxAttempts int    `yaml:"max_attempts"`
		Backoff     string `yaml:"backoff"`
		MaxBackoff  string `yaml:"max_backoff"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"fetch"`

	Alert struct {
		AcceptancePercent float64 `yaml:"acceptance_percent"`
		ReturnPeriods     []int   `yaml:"return_periods"`
		LowFlowBands      []int   `yaml:"low_flow_bands"`
		Workers           int     `yaml:"workers"`
		Schedule          string  `yaml:"schedule"`
	} `yaml:"alert"`

	Kafka struct {
		Enabled *bool    `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	HTTPAddr        string `yaml:"http_addr"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// loadFile parses the YAML config at path into environment-variable keys.
// An empty path yields no values.
func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ALERT_CONFIG_FILE: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse ALERT_CONFIG_FILE %s: %w", path, err)
	}
	return fc.values(), nil
}

func (fc *fileConfig) values() map[string]string {
	v := map[string]string{
		"DB_DRIVER":            fc.Database.Driver,
		"DB_DSN":               fc.Database.DSN,
		"SOURCE":               fc.Source,
		"GEOGLOWS_URL":         fc.GEOGloWS.URL,
		"SIMULATION_CACHE_TTL": fc.GEOGloWS.CacheTTL,
		"HYDROSHARE_URL":       fc.HydroShare.URL,
		"HYDROSHARE_RESOURCE":  fc.HydroShare.Resource,
		"FETCH_BACKOFF":        fc.Fetch.Backoff,
		"FETCH_MAX_BACKOFF":    fc.Fetch.MaxBackoff,
		"FETCH_TIMEOUT":        fc.Fetch.Timeout,
		"SCHEDULE":             fc.Alert.Schedule,
		"KAFKA_BROKERS":        strings.Join(fc.Kafka.Brokers, ","),
		"KAFKA_ALERT_TOPIC":    fc.Kafka.Topic,
		"HTTP_ADDR":            fc.HTTPAddr,
		"LOG_LEVEL":            fc.LogLevel,
		"LOG_FORMAT":           fc.LogFormat,
		"SHUTDOWN_TIMEOUT":     fc.ShutdownTimeout,
		"RETURN_PERIODS":       joinInts(fc.Alert.ReturnPeriods),
		"LOW_FLOW_BANDS":       joinInts(fc.Alert.LowFlowBands),
	}
	setInt(v, "SIMULATION_CACHE_SIZE", fc.GEOGloWS.CacheSize)
	setInt(v, "FETCH_MAX_ATTEMPTS", fc.Fetch.MaxAttempts)
	setInt(v, "WORKERS", fc.Alert.Workers)
	if fc.Alert.AcceptancePercent != 0 {
		v["ACCEPTANCE_PERCENT"] = strconv.FormatFloat(fc.Alert.AcceptancePercent, 'f', -1, 64)
	}
	if fc.Kafka.Enabled != nil {
		v["KAFKA_ENABLED"] = strconv.FormatBool(*fc.Kafka.Enabled)
	}
	return v
}

func setInt(v map[string]string, key string, n int) {
	if n != 0 {
		v[key] = strconv.Itoa(n)
	}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
