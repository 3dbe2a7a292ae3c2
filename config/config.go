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
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	ProjectDir string `json:"project_dir"`
	DataDir    string `json:"data_dir"`

	LLMProvider    string `json:"llm_provider"`
	LLMModel       string `json:"llm_model"`
	BackendURL     string `json:"backend_url"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	OpenAIAPIKey   string `json:"openai_api_key"`

	// Inference client limits
	LLMMaxConcurrency    int           `json:"llm_max_concurrency"`
	LLMMinInterval       time.Duration `json:"llm_min_interval"`
	LLMMaxRetries        int           `json:"llm_max_retries"`
	LLMThrottleBaseDelay time.Duration `json:"llm_throttle_base_delay"`
	LLMThrottleMaxDelay  time.Duration `json:"llm_throttle_max_delay"`
	LLMTransientDelay    time.Duration `json:"llm_transient_delay"`
	LLMRequestTimeout    time.Duration `json:"llm_request_timeout"`
	LLMMaxTokens         int           `json:"llm_max_tokens"`

	// Agent fan-out
	AgentConcurrency int           `json:"agent_concurrency"`
	AgentTimeout     time.Duration `json:"agent_timeout"`

	// Caches
	MarketCacheTTL    time.Duration `json:"market_cache_ttl"`
	SectorCacheTTL    time.Duration `json:"sector_cache_ttl"`
	SelectionCacheTTL time.Duration `json:"selection_cache_ttl"`

	// Candidate selection
	SectorTopN      int `json:"sector_top_n"`
	MarketWideTopN  int `json:"market_wide_top_n"`
	SectorFetch     int `json:"sector_fetch"`
	MarketWideFetch int `json:"market_wide_fetch"`

	// Market data
	EastmoneyTimeout time.Duration `json:"eastmoney_timeout"`

	// Longport API Configuration
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`

	Debug       bool   `json:"debug"`
	MetricsAddr string `json:"metrics_addr"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	return DefaultConfigWithRoot(currentDir)
}

// DefaultConfigWithRoot builds the default config rooted at dir, then applies
// .env and environment overrides.
func DefaultConfigWithRoot(dir string) *Config {
	cfg := &Config{
		ProjectDir: dir,
		DataDir:    filepath.Join(dir, "data"),

		LLMProvider: "deepseek",
		LLMModel:    "deepseek-chat",
		BackendURL:  "",

		LLMMaxConcurrency:    4,
		LLMMinInterval:       300 * time.Millisecond,
		LLMMaxRetries:        3,
		LLMThrottleBaseDelay: 5 * time.Second,
		LLMThrottleMaxDelay:  15 * time.Second,
		LLMTransientDelay:    2 * time.Second,
		LLMRequestTimeout:    60 * time.Second,
		LLMMaxTokens:         1500,

		AgentConcurrency: 8,
		AgentTimeout:     180 * time.Second,

		MarketCacheTTL:    60 * time.Second,
		SectorCacheTTL:    60 * time.Second,
		SelectionCacheTTL: 180 * time.Second,

		SectorTopN:      3,
		MarketWideTopN:  5,
		SectorFetch:     8,
		MarketWideFetch: 30,

		EastmoneyTimeout: 10 * time.Second,

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,

		MetricsAddr: ":9464",
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}

	envInt("LLM_MAX_CONCURRENCY", &c.LLMMaxConcurrency)
	envDuration("LLM_MIN_INTERVAL", &c.LLMMinInterval)
	envInt("LLM_MAX_RETRIES", &c.LLMMaxRetries)
	envDuration("LLM_THROTTLE_BASE_DELAY", &c.LLMThrottleBaseDelay)
	envDuration("LLM_THROTTLE_MAX_DELAY", &c.LLMThrottleMaxDelay)
	envDuration("LLM_TRANSIENT_DELAY", &c.LLMTransientDelay)
	envDuration("LLM_REQUEST_TIMEOUT", &c.LLMRequestTimeout)
	envInt("LLM_MAX_TOKENS", &c.LLMMaxTokens)

	envInt("AGENT_CONCURRENCY", &c.AgentConcurrency)
	envDuration("AGENT_TIMEOUT", &c.AgentTimeout)

	envDuration("MARKET_CACHE_TTL", &c.MarketCacheTTL)
	envDuration("SECTOR_CACHE_TTL", &c.SectorCacheTTL)
	envDuration("SELECTION_CACHE_TTL", &c.SelectionCacheTTL)

	envInt("SECTOR_TOP_N", &c.SectorTopN)
	envInt("MARKET_WIDE_TOP_N", &c.MarketWideTopN)
	envInt("SECTOR_FETCH", &c.SectorFetch)
	envInt("MARKET_WIDE_FETCH", &c.MarketWideFetch)
	envDuration("EASTMONEY_TIMEOUT", &c.EastmoneyTimeout)

	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	envInt("EINO_DEBUG_PORT", &c.EinoDebugPort)

	if val := os.Getenv("CORTEXQUANT_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			*dst = v
		}
	}
}

// envDuration accepts Go duration strings ("300ms") or plain seconds ("5").
func envDuration(key string, dst *time.Duration) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	if d, err := time.ParseDuration(val); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
	}
}

// HasLongport reports whether all three Longport credentials are set.
func (c *Config) HasLongport() bool {
	return c.LongportAppKey != "" && c.LongportAppSecret != "" && c.LongportAccessToken != ""
}

func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.LLMProvider) {
	case "deepseek", "openai":
	default:
		problems = append(problems, fmt.Sprintf("unsupported llm_provider %q", c.LLMProvider))
	}

	positiveInts := []struct {
		name string
		v    int
	}{
		{"llm_max_concurrency", c.LLMMaxConcurrency},
		{"llm_max_retries", c.LLMMaxRetries},
		{"llm_max_tokens", c.LLMMaxTokens},
		{"agent_concurrency", c.AgentConcurrency},
		{"sector_top_n", c.SectorTopN},
		{"market_wide_top_n", c.MarketWideTopN},
		{"sector_fetch", c.SectorFetch},
		{"market_wide_fetch", c.MarketWideFetch},
	}
	for _, p := range positiveInts {
		if p.v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %d", p.name, p.v))
		}
	}

	positiveDurations := []struct {
		name string
		v    time.Duration
	}{
		{"llm_throttle_base_delay", c.LLMThrottleBaseDelay},
		{"llm_throttle_max_delay", c.LLMThrottleMaxDelay},
		{"llm_request_timeout", c.LLMRequestTimeout},
		{"agent_timeout", c.AgentTimeout},
		{"market_cache_ttl", c.MarketCacheTTL},
		{"sector_cache_ttl", c.SectorCacheTTL},
		{"selection_cache_ttl", c.SelectionCacheTTL},
	}
	for _, p := range positiveDurations {
		if p.v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %s", p.name, p.v))
		}
	}
	if c.LLMMinInterval < 0 {
		problems = append(problems, "llm_min_interval must not be negative")
	}
	if c.LLMTransientDelay < 0 {
		problems = append(problems, "llm_transient_delay must not be negative")
	}
	if c.LLMThrottleMaxDelay < c.LLMThrottleBaseDelay {
		problems = append(problems, "llm_throttle_max_delay must be >= llm_throttle_base_delay")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// APIKey returns the key matching the configured provider.
func (c *Config) APIKey() string {
	if strings.EqualFold(c.LLMProvider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.DeepSeekAPIKey
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.DataDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
