// Package app holds the start-up wiring shared by the rfcoverage commands:
// configuration, the run logger and the propagation service client.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"rfcoverage/internal/config"
	"rfcoverage/internal/external"
	"rfcoverage/internal/logging"
	"rfcoverage/internal/types"
)

// Env is the process environment of one command invocation.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	RunID  string
	Client *external.PropagationClient
}

// Setup loads configuration (from dotenvPath when set), builds a logger that
// tags every record with a fresh run ID, and constructs the service client.
func Setup(logOut io.Writer, tool, dotenvPath string) (*Env, error) {
	var (
		cfg *config.Config
		err error
	)
	if dotenvPath != "" {
		cfg, err = config.Load(dotenvPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := logging.New(logOut, cfg.LogLevel, cfg.LogFormat).With(
		"tool", tool,
		"run_id", runID,
		"env", cfg.Environment,
		"version", cfg.Build.Version,
	)

	base := external.NewBaseClient(
		external.NewHTTPClient(cfg.Service.Timeout, cfg.Service.StrictSSL),
		"propagation",
		retryPolicy(cfg.Service.MaxRetries),
		cfg.UserAgent(),
	)
	client := external.NewPropagationClient(base, external.PropagationClientConfig{
		ServerURL: cfg.Service.ServerURL,
		APIURL:    cfg.Service.APIURL,
		UID:       cfg.Service.UID,
		APIKey:    cfg.Service.APIKey,
		Logger:    logger,
	})

	return &Env{Config: cfg, Logger: logger, RunID: runID, Client: client}, nil
}

func retryPolicy(maxRetries int) external.RetryPolicy {
	p := external.DefaultRetryPolicy()
	p.MaxRetries = maxRetries
	return p
}

// Context attaches the run ID and logger to ctx.
func (e *Env) Context(ctx context.Context) context.Context {
	return types.WithLogger(types.WithRunID(ctx, e.RunID), e.Logger)
}

// Diagnostic renders err as the single line printed before exiting.
func Diagnostic(tool string, err error) string {
	var cfgErr *config.ConfigError
	var appErr *types.AppError
	var msg string
	switch {
	case errors.As(err, &cfgErr):
		msg = fmt.Sprintf("%s: configuration error: %v", tool, cfgErr)
	case errors.As(err, &appErr) && appErr.Err != nil:
		msg = fmt.Sprintf("%s: %s: %v", tool, appErr.Message, appErr.Err)
	case errors.As(err, &appErr):
		msg = fmt.Sprintf("%s: %s", tool, appErr.Message)
	default:
		msg = fmt.Sprintf("%s: %v", tool, err)
	}
	return strings.ReplaceAll(msg, "\n", "; ")
}
