package clickhouse

import (
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ClientConfig describes one ClickHouse connection pool. Zero fields take the
// defaults in the struct tags.
type ClientConfig struct {
	Host     string `validate:"required"`
	Port     int    `default:"9000" validate:"gt=0,lte=65535"`
	Database string `default:"default" validate:"required"`
	User     string `default:"default"`
	Password string

	MaxOpenConns    int           `default:"10" validate:"gt=0"`
	MaxIdleConns    int           `default:"5" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `default:"5m"`

	DialTimeout  time.Duration `default:"5s"`
	ReadTimeout  time.Duration `default:"10s"`
	WriteTimeout time.Duration `default:"10s"`
	PingTimeout  time.Duration `default:"5s" validate:"gt=0"`
	MaxExecTime  time.Duration

	UseHTTP      bool
	AsyncInsert  bool
	WaitForAsync bool
}

func (c *ClientConfig) prepare() error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	return validate.Struct(c)
}
