package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// DefaultUserAgent is sent when no identity string is configured.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/104.0.0.0 Safari/537.36"

const DefaultAPIURL = "https://discord.com/api/v9"

// Config holds all configuration for the application
type Config struct {
	Token             string        `envconfig:"DISCORD_TOKEN" name:"token" validate:"required"`
	UserAgent         string        `envconfig:"DISCORD_USER_AGENT" name:"user-agent" validate:"required"`
	APIURL            string        `envconfig:"DISCORD_API_URL" name:"api-url" default:"https://discord.com/api/v9" validate:"required,url"`
	OutputDir         string        `envconfig:"ARCHIVE_DIR" name:"output" default:"." validate:"required"`
	IndexPath         string        `envconfig:"ARCHIVE_INDEX_PATH" name:"index"`
	LogLevel          string        `envconfig:"LOG_LEVEL" name:"log-level" default:"info"`
	Verbose           bool          `envconfig:"VERBOSE" name:"verbose"`
	RequestsPerMinute int           `envconfig:"REQUESTS_PER_MINUTE" name:"requests-per-minute" default:"100" validate:"gt=0"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT" name:"http-timeout" default:"30s" validate:"gt=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("name"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Load returns a Config populated from the environment. Command-line flags are
// applied on top by the caller before Validate.
func Load() (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")

	return c, nil
}

// Validate reports missing or malformed settings by their flag names.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required options: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid options: "+strings.Join(invalid, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}
