package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ConfigPath       string
	TempDirectory    string
	OutputDirectory  string
	LogDirectory     string
	LogTimestamps    bool
	DatabasePath     string
	Port             int    // Status HTTP port, 0 disables the status surface
	StatusToken      string // Bearer token for the status surface, empty disables auth
	WatchdogInterval time.Duration
	WatchdogTimeout  time.Duration
	JournalCapacity  int

	Encoders map[string]EncoderConfig
	Streams  []StreamConfig
}

// layout is the on-disk YAML shape of the stream configuration file.
type layout struct {
	TempDirectory   string                   `yaml:"temp_dir"`
	OutputDirectory string                   `yaml:"output_dir"`
	Encoders        map[string]EncoderConfig `yaml:"encoders"`
	Streams         []StreamConfig           `yaml:"streams"`
}

// Load reads an optional .env file, the environment, and then the YAML stream
// layout at configPath (or RECORDER_CONFIG when configPath is empty).
func Load(envFile, configPath string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// A missing .env in the working directory is normal.
		_ = godotenv.Load()
	}

	cfg := &Config{
		ConfigPath:       getEnv("RECORDER_CONFIG", filepath.Join(".", "recorder.yaml")),
		TempDirectory:    getEnv("TEMP_DIR", ""),
		OutputDirectory:  getEnv("OUTPUT_DIR", ""),
		LogDirectory:     getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogTimestamps:    getEnvAsBool("LOG_TIMESTAMPS", true),
		DatabasePath:     getEnv("DB_PATH", filepath.Join(".", "data", "recordings.db")),
		Port:             getEnvAsInt("HTTP_PORT", 8080),
		StatusToken:      getEnv("STATUS_TOKEN", ""),
		WatchdogInterval: getEnvAsDuration("WATCHDOG_INTERVAL", 500*time.Millisecond),
		WatchdogTimeout:  getEnvAsDuration("WATCHDOG_TIMEOUT", 60*time.Second),
		JournalCapacity:  getEnvAsInt("JOURNAL_CAPACITY", 256),
	}
	if configPath != "" {
		cfg.ConfigPath = configPath
	}

	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream layout: %w", err)
	}
	if err := cfg.applyLayout(data); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a Config from YAML layout bytes with default process settings.
// Environment variables are not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		LogDirectory:     filepath.Join(".", "logs"),
		WatchdogInterval: 500 * time.Millisecond,
		WatchdogTimeout:  60 * time.Second,
		JournalCapacity:  256,
	}
	if err := cfg.applyLayout(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyLayout(data []byte) error {
	var l layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("failed to parse stream layout: %w", err)
	}

	// Environment overrides the file for the two global directories.
	if c.TempDirectory == "" {
		c.TempDirectory = l.TempDirectory
	}
	if c.OutputDirectory == "" {
		c.OutputDirectory = l.OutputDirectory
	}
	c.Encoders = l.Encoders
	c.Streams = l.Streams

	for i := range c.Streams {
		c.Streams[i].applyDefaults(c.WatchdogTimeout)
	}
	return nil
}

// Validate rejects layouts that cannot be started.
func (c *Config) Validate() error {
	var errs []error

	if c.TempDirectory == "" {
		errs = append(errs, errors.New("temp_dir is required"))
	}
	if c.OutputDirectory == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if len(c.Streams) == 0 {
		errs = append(errs, errors.New("at least one stream is required"))
	}
	if c.WatchdogInterval <= 0 || c.WatchdogTimeout <= c.WatchdogInterval {
		errs = append(errs, fmt.Errorf("watchdog timeout %v must exceed interval %v", c.WatchdogTimeout, c.WatchdogInterval))
	}

	for name, enc := range c.Encoders {
		switch enc.Backend {
		case EncoderOpenCV, EncoderGStreamer:
		default:
			errs = append(errs, fmt.Errorf("encoder %q: unknown backend %q", name, enc.Backend))
		}
	}

	seen := make(map[string]bool)
	for _, s := range c.Streams {
		if s.ID == "" {
			errs = append(errs, errors.New("stream with empty id"))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate stream id %q", s.ID))
		}
		seen[s.ID] = true

		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("stream %q: %w", s.ID, err))
		}
		if _, ok := c.Encoders[s.Encoder]; !ok {
			errs = append(errs, fmt.Errorf("stream %q: unknown encoder %q", s.ID, s.Encoder))
		}
	}

	return errors.Join(errs...)
}

// EncoderGroups returns stream indexes grouped by encoder identity, in the
// order identities first appear in the stream list.
func (c *Config) EncoderGroups() ([]string, map[string][]int) {
	var order []string
	groups := make(map[string][]int)
	for i, s := range c.Streams {
		if _, ok := groups[s.Encoder]; !ok {
			order = append(order, s.Encoder)
		}
		groups[s.Encoder] = append(groups[s.Encoder], i)
	}
	return order, groups
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms") or plain milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
