package kafka

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"github.com/trickingegg/golden-dragon/pkg/logger"
)

var validate = validator.New()

// ProducerConfig configures Producer. Zero fields take the tag defaults, so
// RequiredAcks 0 means all replicas.
type ProducerConfig struct {
	Brokers      []string      `validate:"required,min=1,dive,required"`
	RequiredAcks int           `default:"-1" validate:"oneof=-1 1"`
	Compression  string        `default:"gzip" validate:"oneof=gzip snappy lz4 zstd none"`
	MaxAttempts  int           `default:"3" validate:"gte=1"`
	WriteTimeout time.Duration `default:"10s"`
	ReadTimeout  time.Duration `default:"10s"`
	BatchSize    int           `default:"100" validate:"gte=1"`
	BatchBytes   int           `default:"1048576" validate:"gte=1"`
	Linger       time.Duration `default:"100ms"`
	Async        bool
}

// ConsumerConfig configures Consumer.
type ConsumerConfig struct {
	Brokers     []string      `validate:"required,min=1,dive,required"`
	GroupID     string        `default:"golden-dragon" validate:"required"`
	StartLatest bool          // start new groups at the log end instead of the beginning
	Workers     int           `default:"1" validate:"gte=1"`
	BufferSize  int           `default:"64" validate:"gte=1"`
	RetryMax    int           `default:"3" validate:"gte=0"`
	BackoffMin  time.Duration `default:"50ms"`
	BackoffMax  time.Duration `default:"2s" validate:"gtefield=BackoffMin"`
	DLQTopic    string
	MinBytes    int `default:"1" validate:"gte=1"`
	MaxBytes    int `default:"10485760" validate:"gtefield=MinBytes"`
}

func prepare(cfg any) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("kafka config defaults: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("kafka config: %w", err)
	}
	return nil
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Gzip
	}
}

// Option sets the ambient dependencies of a producer or consumer.
type Option func(*options)

type options struct {
	lgr     *logger.Logger
	metrics *clientMetrics
}

// WithLogger sets the logger for broker and handler failures.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.lgr = l
		}
	}
}

// WithRegisterer registers the client metrics on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.metrics = newClientMetrics(reg)
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{lgr: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = defaultMetrics()
	}
	return o
}
