package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"
	"github.com/joho/godotenv"
)

// Supported values for DB_DRIVER and SOURCE.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SourceStore  = "store"
	SourceRemote = "remote"
)

// Config holds all service settings, populated from an optional YAML file
// (ALERT_CONFIG_FILE) and environment variables, applying defaults where unset.
type Config struct {
	DBDriver string
	DBDSN    string

	// Source selects where series come from: the local store, or the
	// GEOGloWS and HydroShare services.
	Source             string
	GEOGloWSURL        string
	HydroShareURL      string
	HydroShareResource string

	FetchMaxAttempts    int
	FetchBackoff        time.Duration
	FetchMaxBackoff     time.Duration
	FetchTimeout        time.Duration
	SimulationCacheSize int
	SimulationCacheTTL  time.Duration

	// Classification settings.
	AcceptancePercent float64
	ReturnPeriods     []int
	LowFlowBands      domain.LowFlowBands
	Workers           int

	// Schedule is a cron expression. Empty means run once and exit.
	Schedule string

	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaAlertTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration. A .env file in the working directory is loaded
// first if present; variables already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	file, err := loadFile(os.Getenv("ALERT_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	env := source{file: file}

	cfg := &Config{
		DBDriver:           strings.ToLower(env.get("DB_DRIVER", DriverSQLite)),
		DBDSN:              env.get("DB_DSN", "streamflow.db"),
		Source:             strings.ToLower(env.get("SOURCE", SourceStore)),
		GEOGloWSURL:        env.get("GEOGLOWS_URL", "https://geoglows.ecmwf.int/api"),
		HydroShareURL:      env.get("HYDROSHARE_URL", "https://www.hydroshare.org/resource"),
		HydroShareResource: env.get("HYDROSHARE_RESOURCE", "1a02d68216f24a7fbde3669b7760652d"),
		Schedule:           env.get("SCHEDULE", ""),
		KafkaAlertTopic:    env.get("KAFKA_ALERT_TOPIC", "streamflow-alerts"),
		HTTPAddr:           env.get("HTTP_ADDR", ":8080"),
		LogLevel:           env.get("LOG_LEVEL", "info"),
		LogFormat:          env.get("LOG_FORMAT", "json"),
	}

	if cfg.FetchMaxAttempts, err = env.positiveInt("FETCH_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.FetchBackoff, err = env.duration("FETCH_BACKOFF", "1s", true); err != nil {
		return nil, err
	}
	if cfg.FetchMaxBackoff, err = env.duration("FETCH_MAX_BACKOFF", cfg.FetchBackoff.String(), true); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = env.duration("FETCH_TIMEOUT", "30s", false); err != nil {
		return nil, err
	}
	if cfg.SimulationCacheSize, err = env.positiveInt("SIMULATION_CACHE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.SimulationCacheTTL, err = env.duration("SIMULATION_CACHE_TTL", "24h", true); err != nil {
		return nil, err
	}
	if cfg.AcceptancePercent, err = parsePercent(env.get("ACCEPTANCE_PERCENT", "10")); err != nil {
		return nil, err
	}
	if cfg.ReturnPeriods, err = parseReturnPeriods(env.get("RETURN_PERIODS", "2,5,10,25,50,100")); err != nil {
		return nil, err
	}
	if cfg.LowFlowBands, err = parseLowFlowBands(env.get("LOW_FLOW_BANDS", "3,7,10")); err != nil {
		return nil, err
	}
	if cfg.Workers, err = env.positiveInt("WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = env.duration("SHUTDOWN_TIMEOUT", "10s", false); err != nil {
		return nil, err
	}

	cfg.KafkaBrokers = parseBrokers(env.get("KAFKA_BROKERS", "localhost:9092"))
	cfg.KafkaEnabled = env.get("KAFKA_ENABLED", "false") == "true"

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: want %s or %s", c.DBDriver, DriverSQLite, DriverPostgres)
	}
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	switch c.Source {
	case SourceStore:
	case SourceRemote:
		if c.GEOGloWSURL == "" {
			return errors.New("GEOGLOWS_URL is required when SOURCE is remote")
		}
		if c.HydroShareURL == "" || c.HydroShareResource == "" {
			return errors.New("HYDROSHARE_URL and HYDROSHARE_RESOURCE are required when SOURCE is remote")
		}
	default:
		return fmt.Errorf("invalid SOURCE %q: want %s or %s", c.Source, SourceStore, SourceRemote)
	}
	if c.FetchMaxBackoff < c.FetchBackoff {
		return errors.New("FETCH_MAX_BACKOFF must not be less than FETCH_BACKOFF")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaAlertTopic == "" {
			return errors.New("KAFKA_ALERT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}

// source resolves a setting from the environment, then the config file.
type source struct {
	file map[string]string
}

func (s source) get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := s.file[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (s source) positiveInt(key string, fallback int) (int, error) {
	raw := s.get(key, strconv.Itoa(fallback))
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}

func (s source) duration(key, fallback string, allowZero bool) (time.Duration, error) {
	raw := s.get(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}

func parsePercent(raw string) (float64, error) {
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil || p <= 0 || p > 100 {
		return 0, fmt.Errorf("invalid ACCEPTANCE_PERCENT %q: must be in (0, 100]", raw)
	}
	return p, nil
}

func parseReturnPeriods(raw string) ([]int, error) {
	allowed := make(map[int]bool, len(domain.StandardReturnPeriods))
	for _, p := range domain.StandardReturnPeriods {
		allowed[p] = true
	}
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil || !allowed[p] {
			return nil, fmt.Errorf("invalid RETURN_PERIODS entry %q: want a subset of %v", part, domain.StandardReturnPeriods)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("RETURN_PERIODS must name at least one return period")
	}
	sort.Ints(out)
	return out, nil
}

func parseLowFlowBands(raw string) (domain.LowFlowBands, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return domain.LowFlowBands{}, fmt.Errorf("invalid LOW_FLOW_BANDS %q: want three day counts", raw)
	}
	var days [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return domain.LowFlowBands{}, fmt.Errorf("invalid LOW_FLOW_BANDS %q: %w", raw, err)
		}
		days[i] = n
	}
	bands := domain.LowFlowBands{Lower1: days[0], Lower3: days[1], Lower7: days[2]}
	if err := bands.Validate(); err != nil {
		return domain.LowFlowBands{}, fmt.Errorf("invalid LOW_FLOW_BANDS: %w", err)
	}
	return bands, nil
}

func parseBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
