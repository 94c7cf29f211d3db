// Package config loads application configuration from command-line flags,
// environment variables and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/geoproapp/geopro-server/internal/domain"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Server   ServerConfig
	Storage  StorageConfig
	Overpass OverpassConfig
	Matching MatchingConfig
	Pipeline PipelineConfig
	Category CategoryConfig
	Cache    CacheConfig
	Index    IndexConfig
	Export   ExportConfig

	// Args holds the positional arguments left after flag parsing.
	Args []string
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds review server configuration.
type ServerConfig struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	CORSOrigins   []string
	AdvertiseMDNS bool

	// SessionsPerMinute caps session creation per client; 0 disables it.
	SessionsPerMinute int
	SessionBurst      int
}

// StorageConfig locates persistent data (sessions database, caches, index).
type StorageConfig struct {
	DataPath string
}

// OverpassConfig configures the live geodata backend.
type OverpassConfig struct {
	Endpoints []string
	// QueryTimeout is the [timeout:N] server-side budget in seconds.
	QueryTimeout int
	HTTPTimeout  time.Duration
	MaxRetries   int
	RPS          float64
	Burst        int
	UserAgent    string
}

// MatchingConfig holds scoring and resolution defaults. They seed each
// session's options and are never read globally by the scorer.
type MatchingConfig struct {
	Policy          string
	Threshold       float64
	Radius          int
	MaxResults      int
	DistanceCutoff  float64
	WeightName      float64
	WeightSpatial   float64
	WeightCategory  float64
	NeutralCategory float64
	ReviewTopK      int
}

// PipelineConfig sizes the retrieval/scoring worker pool.
type PipelineConfig struct {
	Workers int
}

// CategoryConfig points at the external category table files. Empty paths
// use the embedded defaults.
type CategoryConfig struct {
	RulesPath string
	IconsPath string
	HintsPath string
	Watch     bool
}

// CacheConfig configures the retrieval response cache.
type CacheConfig struct {
	Backend string // badger, memory or none
	TTL     time.Duration
}

// IndexConfig configures the offline candidate index.
type IndexConfig struct {
	Enabled bool
	Path    string
}

// ExportConfig controls where the command-line flow writes its KML.
type ExportConfig struct {
	Output    string
	Overwrite bool
	KeepHTML  bool
}

// DefaultOverpassEndpoints are the public Overpass instances rotated between.
var DefaultOverpassEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("geopro", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for sessions, caches and the offline index")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	port := fs.String("port", "", "Review server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins")
	advertiseMDNS := fs.String("advertise-mdns", "", "Advertise the review server via mDNS (default: false)")

	endpoints := fs.String("overpass-endpoints", "", "Comma-separated Overpass interpreter URLs")
	queryTimeout := fs.String("overpass-timeout", "", "Overpass query timeout in seconds (default: 100)")
	maxRetries := fs.String("overpass-retries", "", "Overpass attempts per query (default: 5)")
	rps := fs.String("overpass-rps", "", "Requests per second per endpoint (default: 1)")

	policy := fs.String("policy", "", "Resolution policy: best, threshold[:t] or all (default: best)")
	threshold := fs.String("threshold", "", "Threshold for the threshold policy (default: 0.7)")
	radius := fs.String("radius", "", "Candidate search radius in metres (default: 1000)")
	maxResults := fs.String("max-results", "", "Maximum candidates per record (default: 25)")
	workers := fs.String("workers", "", "Concurrent retrieval/scoring workers (default: 4)")

	rulesPath := fs.String("category-rules", "", "MapCSS type rules CSV (default: embedded)")
	iconsPath := fs.String("category-icons", "", "Bookmark icon YAML (default: embedded)")
	hintsPath := fs.String("category-hints", "", "Category hint YAML (default: embedded)")

	cacheBackend := fs.String("cache", "", "Response cache backend: badger, memory or none (default: badger)")
	useIndex := fs.String("offline-index", "", "Use the offline candidate index instead of Overpass")

	output := fs.String("o", "", "Output KML path (default: input name with .kml)")
	overwrite := fs.Bool("overwrite", false, "Replace an existing output file")
	keepHTML := fs.Bool("keep-html", false, "Keep HTML in exported notes")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:          getConfigValue(*port, "SERVER_PORT", "8080"),
			CORSOrigins:   getListConfigValue(*corsOrigins, "CORS_ORIGINS", []string{"*"}),
			AdvertiseMDNS: getBoolConfigValue(*advertiseMDNS, "ADVERTISE_MDNS", false),

			SessionsPerMinute: getIntConfigValue("", "SERVER_SESSIONS_PER_MINUTE", 10),
			SessionBurst:      getIntConfigValue("", "SERVER_SESSION_BURST", 3),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Overpass: OverpassConfig{
			Endpoints:    getListConfigValue(*endpoints, "OVERPASS_ENDPOINTS", DefaultOverpassEndpoints),
			QueryTimeout: getIntConfigValue(*queryTimeout, "OVERPASS_TIMEOUT", 100),
			MaxRetries:   getIntConfigValue(*maxRetries, "OVERPASS_RETRIES", 5),
			RPS:          getFloatConfigValue(*rps, "OVERPASS_RPS", 1),
			Burst:        getIntConfigValue("", "OVERPASS_BURST", 2),
			UserAgent:    getConfigValue("", "OVERPASS_USER_AGENT", "GeoPro/1.0"),
		},
		Matching: MatchingConfig{
			Policy:          getConfigValue(*policy, "MATCH_POLICY", "best"),
			Threshold:       getFloatConfigValue(*threshold, "MATCH_THRESHOLD", domain.DefaultThreshold),
			Radius:          getIntConfigValue(*radius, "MATCH_RADIUS", 1000),
			MaxResults:      getIntConfigValue(*maxResults, "MATCH_MAX_RESULTS", 25),
			DistanceCutoff:  getFloatConfigValue("", "MATCH_DISTANCE_CUTOFF", 1000),
			WeightName:      getFloatConfigValue("", "MATCH_WEIGHT_NAME", 0.5),
			WeightSpatial:   getFloatConfigValue("", "MATCH_WEIGHT_SPATIAL", 0.3),
			WeightCategory:  getFloatConfigValue("", "MATCH_WEIGHT_CATEGORY", 0.2),
			NeutralCategory: getFloatConfigValue("", "MATCH_NEUTRAL_CATEGORY", 0.5),
			ReviewTopK:      getIntConfigValue("", "MATCH_REVIEW_TOP_K", 10),
		},
		Pipeline: PipelineConfig{
			Workers: getIntConfigValue(*workers, "PIPELINE_WORKERS", 4),
		},
		Category: CategoryConfig{
			RulesPath: getConfigValue(*rulesPath, "CATEGORY_RULES_PATH", ""),
			IconsPath: getConfigValue(*iconsPath, "CATEGORY_ICONS_PATH", ""),
			HintsPath: getConfigValue(*hintsPath, "CATEGORY_HINTS_PATH", ""),
			Watch:     getBoolConfigValue("", "CATEGORY_WATCH", true),
		},
		Cache: CacheConfig{
			Backend: getConfigValue(*cacheBackend, "CACHE_BACKEND", "badger"),
		},
		Index: IndexConfig{
			Enabled: getBoolConfigValue(*useIndex, "OFFLINE_INDEX", false),
			Path:    getConfigValue("", "OFFLINE_INDEX_PATH", ""),
		},
		Export: ExportConfig{
			Output:    *output,
			Overwrite: *overwrite,
			KeepHTML:  *keepHTML,
		},
		Args: fs.Args(),
	}

	durations := []struct {
		flagValue, envKey, def string
		dst                    *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "60s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{"", "OVERPASS_HTTP_TIMEOUT", "120s", &cfg.Overpass.HTTPTimeout},
		{"", "CACHE_TTL", "168h", &cfg.Cache.TTL},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if _, err := domain.ParsePolicy(c.Matching.Policy, c.Matching.Threshold); err != nil {
		return err
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("threshold %.3f out of range [0,1]", c.Matching.Threshold)
	}
	if c.Matching.Radius <= 0 {
		return fmt.Errorf("radius must be positive, got %d", c.Matching.Radius)
	}
	if c.Matching.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", c.Matching.MaxResults)
	}
	if c.Matching.DistanceCutoff <= 0 {
		return fmt.Errorf("distance cutoff must be positive, got %.1f", c.Matching.DistanceCutoff)
	}
	if c.Matching.WeightName < 0 || c.Matching.WeightSpatial < 0 || c.Matching.WeightCategory < 0 {
		return errors.New("scoring weights must not be negative")
	}
	if c.Matching.WeightName+c.Matching.WeightSpatial+c.Matching.WeightCategory == 0 {
		return errors.New("at least one scoring weight must be positive")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Pipeline.Workers)
	}

	if len(c.Overpass.Endpoints) == 0 && !c.Index.Enabled {
		return errors.New("no Overpass endpoints configured and offline index disabled")
	}
	if c.Overpass.MaxRetries < 1 {
		return fmt.Errorf("overpass retries must be at least 1, got %d", c.Overpass.MaxRetries)
	}
	if c.Overpass.RPS <= 0 {
		return fmt.Errorf("overpass rps must be positive, got %.2f", c.Overpass.RPS)
	}

	switch c.Cache.Backend {
	case "badger", "memory", "none":
	default:
		return fmt.Errorf("invalid cache backend: %q (must be badger, memory, or none)", c.Cache.Backend)
	}

	return nil
}

// SessionDBPath is the sqlite file holding sessions.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.Storage.DataPath, "sessions.db")
}

// CacheDir is the badger directory for cached Overpass responses.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Storage.DataPath, "cache", "overpass")
}

func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	c.Storage.DataPath, err = expandPath(c.Storage.DataPath, filepath.Join(homeDir, "GeoPro"))
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}

	c.Index.Path, err = expandPath(c.Index.Path, filepath.Join(c.Storage.DataPath, "index"))
	if err != nil {
		return fmt.Errorf("invalid index path: %w", err)
	}

	for _, p := range []*string{&c.Category.RulesPath, &c.Category.IconsPath, &c.Category.HintsPath} {
		if *p == "" {
			continue
		}
		if *p, err = expandPath(*p, ""); err != nil {
			return fmt.Errorf("invalid category table path: %w", err)
		}
	}
	return nil
}

// expandPath expands ~ and makes the path absolute. An empty path yields
// defaultPath unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abs
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1" and "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue
	}
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}
	return n
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// getListConfigValue splits a comma-separated value, dropping empty items.
func getListConfigValue(flagValue, envKey string, defaultValue []string) []string {
	v := getConfigValue(flagValue, envKey, "")
	if v == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadEnvFile loads KEY=value lines from a .env file. Existing environment
// variables win over file entries.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- path comes from the operator
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}
