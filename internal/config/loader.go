// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Load dotenv files via godotenv (the default .env is optional).
//  2. Use envconfig to process struct tags and populate the Config struct.
//  3. Populate BuildInfo from linker-injected variables.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the configuration.
//
// With no arguments, a .env file in the working directory is loaded when
// present. Explicit dotenv paths must exist. godotenv never overrides
// variables already set in the environment.
func Load(dotenvPaths ...string) (*Config, error) {
	if len(dotenvPaths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Type: ErrDotenv, Message: "failed to read .env", Err: err}
		}
	} else if err := godotenv.Load(dotenvPaths...); err != nil {
		return nil, &ConfigError{
			Type:    ErrDotenv,
			Message: fmt.Sprintf("failed to read dotenv files %v", dotenvPaths),
			Err:     err,
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}
