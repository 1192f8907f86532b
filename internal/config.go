package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/adhocore/gronx"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost" validate:"required"`
	Port                 int           `env:"PORT,default=8080" validate:"min=1,max=65535"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	RetentionLimit       int           `env:"RETENTION_LIMIT,default=100" validate:"min=1"`
	RetentionCron        string        `env:"RETENTION_CRON,default=*/5 * * * *" validate:"omitempty,cron"`
	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=256" validate:"min=1"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"min=1"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s" validate:"gte=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=15s" validate:"gte=0"`
	AllowedOrigin        string        `env:"ALLOWED_ORIGIN"`
	AuthSecret           string        `env:"AUTH_SECRET"`
	AuditLog             bool          `env:"AUDIT_LOG,default=true"`
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig(files ...string) (Config, error) {
	// A missing .env is fine, the environment alone may be enough
	_ = godotenv.Load(files...)

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := Validate(config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func Validate(config Config) error {
	validate := validator.New()
	if err := validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return gronx.IsValid(fl.Field().String())
	}); err != nil {
		return err
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
