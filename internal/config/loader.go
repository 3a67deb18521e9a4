package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig reads configuration in increasing priority:
//  1. built-in defaults
//  2. the YAML file at path (optional)
//  3. a .env file in the working directory (optional)
//  4. BOT_* environment variables, e.g. BOT_TELEGRAM_TOKEN
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env: %v", ErrConfiguration, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	_ = v.BindEnv("telegram.token")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("clock", validateClock); err != nil {
		return fmt.Errorf("failed to register clock validator: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return err
	}

	start, _ := time.Parse("15:04", c.Scheduler.CheckinWindowStart)
	end, _ := time.Parse("15:04", c.Scheduler.CheckinWindowEnd)
	if !start.Before(end) {
		return fmt.Errorf("check-in window start %s must be before end %s",
			c.Scheduler.CheckinWindowStart, c.Scheduler.CheckinWindowEnd)
	}
	return nil
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}
