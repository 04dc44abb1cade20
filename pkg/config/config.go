package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"PaperDesk/pkg/logger"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
		// Token bucket applied per client to mutating endpoints.
		RateLimitBurst  float64 `yaml:"rate_limit_burst" default:"20"`
		RateLimitPerSec float64 `yaml:"rate_limit_per_sec" default:"5"`
		// Empty disables CORS.
		CORSOrigins []string `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type" default:"memory"` // memory or postgres
	} `yaml:"backend"`
	Postgres struct {
		DSN            string        `yaml:"dsn"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
		Migrate        bool          `yaml:"migrate" default:"true"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"paperdesk"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
		Compress         bool          `yaml:"compress" default:"true"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		Prefix       string        `yaml:"prefix" default:"paperdesk"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"5s"`
		Queue        struct {
			Enabled    bool          `yaml:"enabled"`
			Workers    int           `yaml:"workers" default:"1"`
			RetryLimit int           `yaml:"retry_limit" default:"3"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		} `yaml:"queue"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic" default:"paperdesk.events"`
		TicksTopic   string   `yaml:"ticks_topic" default:"paperdesk.ticks"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"paperdesk"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Finnhub struct {
		Enabled           bool          `yaml:"enabled"`
		APIKey            string        `yaml:"api_key"`
		RESTURL           string        `yaml:"rest_url" default:"https://finnhub.io/api/v1"`
		WebSocketURL      string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Stream            bool          `yaml:"stream"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval      time.Duration `yaml:"ping_interval" default:"30s"`
		RequestsPerSecond float64       `yaml:"requests_per_second" default:"1"`
		Timeout           time.Duration `yaml:"timeout" default:"10s"`
		MaxRetries        int           `yaml:"max_retries" default:"2"`
		StreamMaxRPS      int           `yaml:"stream_max_rps" default:"20"`
		MaxPriceJump      float64       `yaml:"max_price_jump" default:"0.2"`
	} `yaml:"finnhub"`
	Portfolio struct {
		ID          string   `yaml:"id" default:"default"`
		InitialCash float64  `yaml:"initial_cash" default:"100000"`
		Symbols     []string `yaml:"symbols"`
		// Sectors maps a symbol to its sector; unknown symbols fall into "Unclassified".
		Sectors map[string]string `yaml:"sectors"`
	} `yaml:"portfolio"`
	Sentiment struct {
		Lookback          time.Duration `yaml:"lookback" default:"168h"`
		MinArticleLength  int           `yaml:"min_article_length" default:"50"`
		CacheTTL          time.Duration `yaml:"cache_ttl" default:"15m"`
		ProviderTimeout   time.Duration `yaml:"provider_timeout" default:"10s"`
		ProviderRetries   int           `yaml:"provider_retries" default:"2"`
		Keywords          []string      `yaml:"keywords"`
		RemoteAnalyzerURL string        `yaml:"remote_analyzer_url"`
	} `yaml:"sentiment"`
	Trading struct {
		BuyThreshold        float64       `yaml:"buy_threshold" default:"0.2"`
		SellThreshold       float64       `yaml:"sell_threshold" default:"0.2"`
		ConfidenceThreshold float64       `yaml:"confidence_threshold" default:"0.6"`
		SentimentWeight     float64       `yaml:"sentiment_weight" default:"0.5"`
		MaxPositionSize     float64       `yaml:"max_position_size" default:"0.05"`
		MaxSectorAllocation float64       `yaml:"max_sector_allocation" default:"0.3"`
		MaxPositions        int           `yaml:"max_positions" default:"20"`
		SignalExpiry        time.Duration `yaml:"signal_expiry" default:"24h"`
		StalenessWindow     time.Duration `yaml:"staleness_window" default:"24h"`
		SweepInterval       time.Duration `yaml:"sweep_interval" default:"5m"`
		LockTTL             time.Duration `yaml:"lock_ttl" default:"10s"`
		PriceMaxAge         time.Duration `yaml:"price_max_age" default:"1m"`
	} `yaml:"trading"`
	Learning struct {
		Lookback       time.Duration `yaml:"lookback" default:"720h"`
		MinOccurrences int           `yaml:"min_occurrences" default:"5"`
		TargetWinRate  float64       `yaml:"target_win_rate" default:"0.55"`
		Tolerance      float64       `yaml:"tolerance" default:"0.1"`
		MaxStep        float64       `yaml:"max_step" default:"0.05"`
		OutcomeMinAge  time.Duration `yaml:"outcome_min_age" default:"24h"`
		RunAt          string        `yaml:"run_at" default:"00:30"` // HH:MM UTC
		Scheduled      bool          `yaml:"scheduled" default:"true"`
	} `yaml:"learning"`
}

// Default returns a configuration populated only with struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Portfolio.Symbols = strings.Split(v, ",")
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("INITIAL_CASH"); v != "" {
		cash, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INITIAL_CASH: %w", err)
		}
		c.Portfolio.InitialCash = cash
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for postgres backend")
		}
	default:
		return fmt.Errorf("backend.type must be 'memory' or 'postgres', got '%s'", c.Backend.Type)
	}
	if c.Portfolio.ID == "" {
		return fmt.Errorf("portfolio.id is required")
	}
	if c.Portfolio.InitialCash <= 0 {
		return fmt.Errorf("portfolio.initial_cash must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Finnhub.Enabled && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required when finnhub is enabled")
	}
	if c.Redis.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("redis.queue requires redis.enabled")
	}

	t := c.Trading
	for name, v := range map[string]float64{
		"trading.buy_threshold":         t.BuyThreshold,
		"trading.sell_threshold":        t.SellThreshold,
		"trading.confidence_threshold":  t.ConfidenceThreshold,
		"trading.sentiment_weight":      t.SentimentWeight,
		"trading.max_position_size":     t.MaxPositionSize,
		"trading.max_sector_allocation": t.MaxSectorAllocation,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if t.MaxPositions <= 0 {
		return fmt.Errorf("trading.max_positions must be positive")
	}
	if t.SignalExpiry <= 0 || t.StalenessWindow <= 0 {
		return fmt.Errorf("trading.signal_expiry and trading.staleness_window must be positive")
	}
	if c.Learning.MinOccurrences <= 0 {
		return fmt.Errorf("learning.min_occurrences must be positive")
	}
	if _, _, err := c.LearningRunAt(); err != nil {
		return err
	}
	return nil
}

// LearningRunAt parses learning.run_at into hour and minute (UTC).
func (c *Config) LearningRunAt() (int, int, error) {
	t, err := time.Parse("15:04", c.Learning.RunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("learning.run_at must be HH:MM: %w", err)
	}
	return t.Hour(), t.Minute(), nil
}

// SectorOf resolves the configured sector for a symbol.
func (c *Config) SectorOf(symbol string) string {
	if s, ok := c.Portfolio.Sectors[strings.ToUpper(symbol)]; ok && s != "" {
		return s
	}
	return "Unclassified"
}
