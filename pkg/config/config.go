package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/services/risk"
	"github.com/trickingegg/golden-dragon/internal/services/strategy"
	"github.com/trickingegg/golden-dragon/pkg/util"
)

const (
	FeedWebsocket = "websocket"
	FeedKafka     = "kafka"

	BrokerPaper = "paper"
	BrokerHTTP  = "http"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	} `yaml:"log"`
	Feed struct {
		Source         string        `yaml:"source" default:"websocket" validate:"oneof=websocket kafka"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Token          string        `yaml:"token"`
		Interval       string        `yaml:"interval" default:"1m"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`
	Broker struct {
		Mode        string        `yaml:"mode" default:"paper" validate:"oneof=paper http"`
		BaseURL     string        `yaml:"base_url"`
		Token       string        `yaml:"token"`
		AccountID   string        `yaml:"account_id"`
		Timeout     time.Duration `yaml:"timeout" default:"10s"`
		RateLimit   float64       `yaml:"rate_limit" default:"5" validate:"gt=0"`
		RateBurst   int           `yaml:"rate_burst" default:"10" validate:"gt=0"`
		PaperCash   float64       `yaml:"paper_cash" default:"1000000" validate:"gte=0"`
		PaperMargin float64       `yaml:"paper_margin" default:"5000" validate:"gte=0"`
		Currency    string        `yaml:"currency" default:"RUB"`
	} `yaml:"broker"`
	Instruments []models.Instrument `yaml:"instruments" validate:"required,min=1,dive"`
	Trading     struct {
		BarDuration    time.Duration `yaml:"bar_duration" default:"1m" validate:"gt=0"`
		AnalysisDelay  time.Duration `yaml:"analysis_delay" default:"15s"`
		AnalysisEvery  time.Duration `yaml:"analysis_interval" default:"10s" validate:"gt=0"`
		Cooldown       time.Duration `yaml:"cooldown" default:"60s"`
		SignalExpiry   time.Duration `yaml:"signal_expiry" default:"24h" validate:"gt=0"`
		SweepInterval  time.Duration `yaml:"sweep_interval" default:"1m" validate:"gt=0"`
		HistoryDays    int           `yaml:"history_days" default:"7" validate:"gte=0"`
		MaxBars        int           `yaml:"max_bars" default:"5000" validate:"gte=0"`
		RecentSignals  int           `yaml:"recent_signals" default:"200" validate:"gt=0"`
		ThrottleRPS    int           `yaml:"throttle_rps" default:"0" validate:"gte=0"`
		PipelineBuffer int           `yaml:"pipeline_buffer" default:"1024" validate:"gt=0"`
		WriterBatch    int           `yaml:"writer_batch" default:"500" validate:"gt=0"`
		WriterFlush    time.Duration `yaml:"writer_flush" default:"5s" validate:"gt=0"`
	} `yaml:"trading"`
	Strategies strategy.Config `yaml:"strategies"`
	Risk       risk.Config     `yaml:"risk"`
	Kafka      struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Topics       struct {
			Orders  string `yaml:"orders" default:"orders"`
			Signals string `yaml:"signals" default:"signals"`
			Candles string `yaml:"candles" default:"candles"`
			Logs    string `yaml:"logs" default:"logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"golden-dragon"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
		LogCollector struct {
			Enabled  bool          `yaml:"enabled"`
			Interval time.Duration `yaml:"interval" default:"30s"`
			MaxItems int           `yaml:"max_items" default:"100"`
		} `yaml:"log_collector"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"golden_dragon"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		Prefix       string        `yaml:"prefix" default:"golden-dragon"`
		MarginTTL    time.Duration `yaml:"margin_ttl" default:"5m" validate:"gt=0"`
		OrderQueue   string        `yaml:"order_queue" default:"orders"`
		QueueWorkers int           `yaml:"queue_workers" default:"2" validate:"gt=0"`
	} `yaml:"redis"`
}

// Default returns a config with every default applied and no instruments.
func Default() *Config {
	c := &Config{
		Strategies: strategy.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
	}
	_ = defaults.Set(c)
	return c
}

// Load reads and parses a YAML configuration file. Keys missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
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
	if v := getenv("BROKER_TOKEN"); v != "" {
		c.Broker.Token = v
	}
	c.Server.Port = util.ParseIntDefault(getenv("SERVER_PORT"), c.Server.Port)
	if v := getenv("FEED_SOURCE"); v != "" {
		c.Feed.Source = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("INSTRUMENTS"); v != "" {
		// INSTRUMENTS=ID:KIND:CURRENCY[:LOT],...
		insts, err := parseInstruments(v)
		if err != nil {
			return fmt.Errorf("INSTRUMENTS: %w", err)
		}
		c.Instruments = insts
	}
	return nil
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

func parseInstruments(v string) ([]models.Instrument, error) {
	var out []models.Instrument
	for _, item := range splitList(v) {
		f := strings.Split(item, ":")
		if len(f) < 3 || len(f) > 4 {
			return nil, fmt.Errorf("malformed instrument %q", item)
		}
		inst := models.Instrument{ID: f[0], Name: f[0], Kind: models.InstrumentKind(strings.ToUpper(f[1])), Currency: f[2]}
		if len(f) == 4 {
			var lot int64
			if _, err := fmt.Sscanf(f[3], "%d", &lot); err != nil {
				return nil, fmt.Errorf("lot size of %q: %w", item, err)
			}
			inst.LotSize = lot
		}
		out = append(out, inst)
	}
	return out, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Feed.Source == FeedWebsocket && c.Feed.WebSocketURL == "" {
		return errors.New("feed.websocket_url is required for websocket feed")
	}
	if c.Feed.Source == FeedKafka && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty for kafka feed")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Broker.Mode == BrokerHTTP && c.Broker.BaseURL == "" {
		return errors.New("broker.base_url is required for http broker")
	}
	seen := make(map[string]struct{}, len(c.Instruments))
	for _, inst := range c.Instruments {
		if _, dup := seen[inst.ID]; dup {
			return fmt.Errorf("instrument %s listed twice", inst.ID)
		}
		seen[inst.ID] = struct{}{}
	}
	known := make(map[string]struct{})
	for _, name := range strategy.Names() {
		known[name] = struct{}{}
	}
	for _, name := range c.Strategies.Enabled {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("strategies.enabled: %w: %s", models.ErrUnknownStrategy, name)
		}
	}
	return nil
}
