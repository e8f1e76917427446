package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// IndicatorSpec selects one technical indicator column.
type IndicatorSpec struct {
	Kind   string `yaml:"kind"`
	Window int    `yaml:"window"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Pipeline struct {
		Frequency          time.Duration `yaml:"frequency"`
		PriceStaleness     time.Duration `yaml:"price_staleness"`
		IndicatorStaleness time.Duration `yaml:"indicator_staleness"`
		SentimentStaleness time.Duration `yaml:"sentiment_staleness"`
		MaxFillGap         int           `yaml:"max_fill_gap"`
		BatchSize          int           `yaml:"batch_size"`
		BatchTimeout       time.Duration `yaml:"batch_timeout"`
	} `yaml:"pipeline"`
	Indicators []IndicatorSpec `yaml:"indicators"`
	Sentiment  struct {
		Scorer       string        `yaml:"scorer"` // "lexicon" or "remote"
		BucketWidth  time.Duration `yaml:"bucket_width"`
		Reducer      string        `yaml:"reducer"` // "mean" or "weighted"
		ScoreTimeout time.Duration `yaml:"score_timeout"`
		RemoteURL    string        `yaml:"remote_url"`
		RemoteMaxRPS float64       `yaml:"remote_max_rps"`
	} `yaml:"sentiment"`
	Window struct {
		Lookback int `yaml:"lookback"`
		Horizon  int `yaml:"horizon"`
		Stride   int `yaml:"stride"`
	} `yaml:"window"`
	Split struct {
		Train float64 `yaml:"train"`
		Val   float64 `yaml:"val"`
	} `yaml:"split"`
	Normalize struct {
		Kind string `yaml:"kind"` // "zscore" or "minmax"
	} `yaml:"normalize"`
	Trainer struct {
		LearningRate   float64 `yaml:"learning_rate"`
		Epochs         int     `yaml:"epochs"`
		BatchSize      int     `yaml:"batch_size"`
		Patience       int     `yaml:"patience"`
		MinDelta       float64 `yaml:"min_delta"`
		AttentionSpan  int     `yaml:"attention_span"`
		AttentionDecay float64 `yaml:"attention_decay"`
		Seed           int64   `yaml:"seed"`
	} `yaml:"trainer"`
	Registry struct {
		Backend string `yaml:"backend"` // "memory" or "redis"
	} `yaml:"registry"`
	ModelDir string `yaml:"model_dir"`
	Serving  struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"serving"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.ModelDir = v
	}
	if v := os.Getenv("SENTIMENT_REMOTE_URL"); v != "" {
		c.Sentiment.RemoteURL = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.Frequency == 0 {
		c.Pipeline.Frequency = time.Hour
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = 500
	}
	if c.Pipeline.BatchTimeout == 0 {
		c.Pipeline.BatchTimeout = 5 * time.Second
	}
	if c.Sentiment.BucketWidth == 0 {
		c.Sentiment.BucketWidth = c.Pipeline.Frequency
	}
	if c.Sentiment.ScoreTimeout == 0 {
		c.Sentiment.ScoreTimeout = 3 * time.Second
	}
	if c.Window.Lookback == 0 {
		c.Window.Lookback = 24
	}
	if c.Window.Horizon == 0 {
		c.Window.Horizon = 1
	}
	if c.Window.Stride == 0 {
		c.Window.Stride = 1
	}
	if c.Split.Train == 0 {
		c.Split.Train = 0.7
	}
	if c.Split.Val == 0 {
		c.Split.Val = 0.15
	}
	if c.Normalize.Kind == "" {
		c.Normalize.Kind = "zscore"
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = "memory"
	}
	if c.ModelDir == "" {
		c.ModelDir = "./models"
	}
	if c.Serving.CacheTTL == 0 {
		c.Serving.CacheTTL = 30 * time.Second
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 1
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Pipeline.Frequency <= 0 {
		return fmt.Errorf("pipeline.frequency must be positive")
	}
	if c.Window.Lookback < 2 {
		return fmt.Errorf("window.lookback must be >= 2")
	}
	if c.Window.Horizon < 1 {
		return fmt.Errorf("window.horizon must be >= 1")
	}
	if c.Window.Stride < 1 {
		return fmt.Errorf("window.stride must be >= 1")
	}
	if c.Split.Train <= 0 || c.Split.Val <= 0 || c.Split.Train+c.Split.Val >= 1 {
		return fmt.Errorf("split fractions must be positive and leave room for a test split")
	}
	for _, spec := range c.Indicators {
		if spec.Kind == "" || spec.Window < 2 {
			return fmt.Errorf("indicators entries need a kind and window >= 2")
		}
	}
	switch c.Registry.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("registry.backend=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("registry.backend must be 'memory' or 'redis', got '%s'", c.Registry.Backend)
	}
	if c.Sentiment.Scorer == "remote" && c.Sentiment.RemoteURL == "" {
		return fmt.Errorf("sentiment.scorer=remote requires sentiment.remote_url")
	}
	return nil
}
