package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PipeKit/internal/domain/models"
)

// QueueTarget is a queue name plus the exchange it is routed through.
type QueueTarget struct {
	Name     string `yaml:"name"`
	Exchange string `yaml:"exchange"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Service     string `yaml:"service" default:"pipekit"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Redact    bool   `yaml:"redact" default:"true"`
		Collector struct {
			Topic    string        `yaml:"topic"`
			Interval time.Duration `yaml:"interval" default:"30s"`
			MaxBatch int           `yaml:"max_batch" default:"100" validate:"min=1"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Output struct {
		Modes        []string    `yaml:"modes"`
		RequiredKeys []string    `yaml:"required_keys"`
		Queue        QueueTarget `yaml:"queue"`
		REST         struct {
			URL     string        `yaml:"url"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
		} `yaml:"rest"`
		S3 struct {
			Bucket       string `yaml:"bucket"`
			Prefix       string `yaml:"prefix"`
			Region       string `yaml:"region" default:"us-east-1"`
			Endpoint     string `yaml:"endpoint"`
			UsePathStyle bool   `yaml:"use_path_style"`
		} `yaml:"s3"`
		Database struct {
			URL          string        `yaml:"url"`
			InsertSQL    string        `yaml:"insert_sql"`
			MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
			MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
			DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		} `yaml:"database"`
	} `yaml:"output"`
	PaperTrading struct {
		Enabled         bool        `yaml:"enabled"`
		Mode            string      `yaml:"mode" default:"log"`
		DatabaseEnabled bool        `yaml:"database_enabled"`
		Queue           QueueTarget `yaml:"queue"`
		InsertSQL       string      `yaml:"insert_sql"`
	} `yaml:"paper_trading"`
	Queue struct {
		Type  string `yaml:"type" default:"kafka" validate:"oneof=kafka redis"`
		Input string `yaml:"input" default:"pipeline.input"`
	} `yaml:"queue"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"pipekit"`
			Workers    int           `yaml:"workers" default:"4" validate:"min=1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		Prefix       string        `yaml:"prefix" default:"pipekit"`
		BlockTimeout time.Duration `yaml:"block_timeout" default:"5s"`
		Workers      int           `yaml:"workers" default:"4" validate:"min=1"`
		RetryLimit   int           `yaml:"retry_limit" default:"3"`
		RetryDelay   time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"redis"`
	Poller struct {
		Type           string        `yaml:"type" default:"http" validate:"oneof=http websocket"`
		URL            string        `yaml:"url"`
		APIKey         string        `yaml:"api_key"`
		Symbols        []string      `yaml:"symbols"`
		Interval       time.Duration `yaml:"interval" default:"60s"`
		RetryDelay     time.Duration `yaml:"retry_delay" default:"5s"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"10s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		Output         QueueTarget   `yaml:"output"`
		RateLimit      struct {
			Capacity int           `yaml:"capacity" default:"5" validate:"min=1"`
			Refill   time.Duration `yaml:"refill" default:"1s"`
		} `yaml:"rate_limit"`
	} `yaml:"poller"`

	// parsed by Validate
	modes     []models.OutputMode
	paperMode models.OutputMode
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML (optional) and overrides it with environment
// variables. A .env file in the working directory is loaded first when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort

	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("OUTPUT_MODES"); v != "" {
		c.Output.Modes = splitList(v)
	}
	if v := os.Getenv("REQUIRED_KEYS"); v != "" {
		c.Output.RequiredKeys = splitList(v)
	}
	c.Output.Queue.Name = GetString("OUTPUT_QUEUE", c.Output.Queue.Name)
	c.Output.Queue.Exchange = GetString("OUTPUT_EXCHANGE", c.Output.Queue.Exchange)
	c.Output.REST.URL = GetString("REST_OUTPUT_URL", c.Output.REST.URL)
	c.Output.S3.Bucket = GetString("S3_OUTPUT_BUCKET", c.Output.S3.Bucket)
	c.Output.S3.Prefix = GetString("S3_OUTPUT_PREFIX", c.Output.S3.Prefix)
	c.Output.S3.Region = GetString("AWS_REGION", c.Output.S3.Region)
	c.Output.S3.Endpoint = GetString("S3_ENDPOINT", c.Output.S3.Endpoint)
	c.Output.Database.URL = GetString("DATABASE_OUTPUT_URL", c.Output.Database.URL)
	c.Output.Database.InsertSQL = GetString("DATABASE_INSERT_SQL", c.Output.Database.InsertSQL)

	var err error
	if c.PaperTrading.Enabled, err = GetBool("PAPER_TRADING_ENABLED", c.PaperTrading.Enabled); err != nil {
		return err
	}
	if c.PaperTrading.DatabaseEnabled, err = GetBool("PAPER_TRADING_DATABASE_ENABLED", c.PaperTrading.DatabaseEnabled); err != nil {
		return err
	}
	c.PaperTrading.Mode = GetString("PAPER_TRADE_MODE", c.PaperTrading.Mode)
	c.PaperTrading.Queue.Name = GetString("PAPER_TRADING_QUEUE", c.PaperTrading.Queue.Name)
	c.PaperTrading.Queue.Exchange = GetString("PAPER_TRADING_EXCHANGE", c.PaperTrading.Queue.Exchange)
	c.PaperTrading.InsertSQL = GetString("PAPER_TRADING_INSERT_SQL", c.PaperTrading.InsertSQL)

	c.Queue.Type = GetString("QUEUE_TYPE", c.Queue.Type)
	c.Queue.Input = GetString("INPUT_QUEUE", c.Queue.Input)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	c.Redis.Addr = GetString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = GetString("REDIS_PASSWORD", c.Redis.Password)

	c.Logging.Level = GetString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetString("LOG_FORMAT", c.Logging.Format)
	if c.Logging.Redact, err = GetBool("REDACT_SENSITIVE_LOGS", c.Logging.Redact); err != nil {
		return err
	}
	if c.Server.Port, err = GetInt("PORT", c.Server.Port); err != nil {
		return err
	}

	c.Poller.Type = GetString("POLLER_TYPE", c.Poller.Type)
	c.Poller.URL = GetString("POLLER_URL", c.Poller.URL)
	c.Poller.APIKey = GetString("POLLER_API_KEY", c.Poller.APIKey)
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Poller.Symbols = splitList(v)
	}
	return nil
}

// Validate checks struct constraints and resolves output mode names.
// Unknown mode names fail here rather than at dispatch time.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %q", models.ErrConfiguration, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	modes, err := models.ParseOutputModes(c.Output.Modes)
	if err != nil {
		return err
	}
	c.modes = modes

	if c.PaperTrading.Enabled {
		if c.paperMode, err = models.ParseOutputMode(c.PaperTrading.Mode); err != nil {
			return fmt.Errorf("paper_trading.mode: %w", err)
		}
	}

	if c.Queue.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers cannot be empty", models.ErrConfiguration)
	}
	for _, m := range modes {
		switch m {
		case models.ModeREST:
			if c.Output.REST.URL == "" {
				return fmt.Errorf("%w: output.rest.url is required for rest mode", models.ErrConfiguration)
			}
		case models.ModeS3:
			if c.Output.S3.Bucket == "" {
				return fmt.Errorf("%w: output.s3.bucket is required for s3 mode", models.ErrConfiguration)
			}
		case models.ModeDatabase:
			if c.Output.Database.URL == "" || c.Output.Database.InsertSQL == "" {
				return fmt.Errorf("%w: output.database.url and insert_sql are required for database mode", models.ErrConfiguration)
			}
		}
	}
	return nil
}

// OutputModes returns the modes resolved by Validate, in configured order.
func (c *Config) OutputModes() []models.OutputMode {
	return append([]models.OutputMode(nil), c.modes...)
}

// NeedsMode reports whether mode is configured or is the paper trading mode.
func (c *Config) NeedsMode(mode models.OutputMode) bool {
	if c.PaperTrading.Enabled && c.paperMode == mode {
		return true
	}
	for _, m := range c.modes {
		if m == mode {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
