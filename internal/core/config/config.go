// Package config reads the processor configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ElevationCfg struct {
	URL               string
	Protocol          string
	Concurrency       int
	ProfileResolution float64
	RetryBudget       time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestTimeout    time.Duration
	Rate              float64
	Burst             int
	Jitter            time.Duration
	CacheSize         int
}

type CacheCfg struct {
	RedisAddr string
	TTL       time.Duration
	OpTimeout time.Duration
}

type NotifyCfg struct {
	Brokers []string
	Topic   string
}

type Config struct {
	InputDir        string
	OutputDir       string
	IntermediateDir string
	ClusterCommand  string
	StatusAddr      string
	LogLevel        string
	LogConsole      bool
	Elevation       ElevationCfg
	Cache           CacheCfg
	Notify          NotifyCfg
}

// Input and output file names inside the configured directories.
const (
	OSMSkiAreasFile    = "osm_ski_areas.geojson"
	SkimapSkiAreasFile = "skimap_ski_areas.geojson"
	RunsFile           = "runs.geojson"
	LiftsFile          = "lifts.geojson"
	SitesFile          = "sites.json"
	SkiAreasOutFile    = "ski_areas.geojson"
)

// Load reads the given dotenv files, when present, and then the environment.
// Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

func FromEnv() Config {
	output := getenv("OUTPUT_DIR", "data/output")
	return Config{
		InputDir:        getenv("INPUT_DIR", "data/input"),
		OutputDir:       output,
		IntermediateDir: getenv("INTERMEDIATE_DIR", filepath.Join(output, "intermediate")),
		ClusterCommand:  getenv("CLUSTER_COMMAND", ""),
		StatusAddr:      getenv("STATUS_ADDR", ""),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		Elevation: ElevationCfg{
			URL:               getenv("ELEVATION_URL", ""),
			Protocol:          strings.ToLower(getenv("ELEVATION_PROTOCOL", "point")),
			Concurrency:       getint("ELEVATION_CONCURRENCY", 10),
			ProfileResolution: getfloat("ELEVATION_PROFILE_RESOLUTION", 25),
			RetryBudget:       getduration("ELEVATION_RETRY_BUDGET", 10*time.Minute),
			InitialBackoff:    getduration("ELEVATION_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:        getduration("ELEVATION_MAX_BACKOFF", 30*time.Second),
			RequestTimeout:    getduration("ELEVATION_REQUEST_TIMEOUT", 30*time.Second),
			Rate:              getfloat("ELEVATION_RATE", 0),
			Burst:             getint("ELEVATION_BURST", 1),
			Jitter:            getduration("ELEVATION_JITTER", 0),
			CacheSize:         getint("ELEVATION_CACHE_SIZE", 1<<20),
		},
		Cache: CacheCfg{
			RedisAddr: getenv("REDIS_ADDR", ""),
			TTL:       getduration("ELEVATION_CACHE_TTL", 30*24*time.Hour),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Notify: NotifyCfg{
			Brokers: getlist("KAFKA_BROKERS"),
			Topic:   getenv("KAFKA_TOPIC", "skidata-processing"),
		},
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, errors.New("INPUT_DIR is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR is required"))
	}
	if p := c.Elevation.Protocol; p != "point" && p != "batch" {
		errs = append(errs, fmt.Errorf("ELEVATION_PROTOCOL must be point or batch, got %q", p))
	}
	if c.Elevation.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("ELEVATION_CONCURRENCY must be positive, got %d", c.Elevation.Concurrency))
	}
	if c.Elevation.ProfileResolution <= 0 {
		errs = append(errs, fmt.Errorf("ELEVATION_PROFILE_RESOLUTION must be positive, got %v", c.Elevation.ProfileResolution))
	}
	if c.Elevation.RetryBudget <= 0 {
		errs = append(errs, errors.New("ELEVATION_RETRY_BUDGET must be positive"))
	}
	return errors.Join(errs...)
}

// Clustering reports whether an external clustering stage follows the pipelines.
func (c Config) Clustering() bool { return c.ClusterCommand != "" }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getlist splits "a:9092, b:9092" into its non-empty parts.
func getlist(k string) []string {
	var out []string
	for p := range strings.SplitSeq(os.Getenv(k), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
