package config

import "fmt"

// Linker-injected build metadata, e.g.:
//
//	go build -ldflags "-X rfcoverage/internal/config.version=1.2.3 \
//	    -X rfcoverage/internal/config.commit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// UserAgent returns the User-Agent sent to the propagation service, with the
// build version appended when the configured agent has none.
func (c *Config) UserAgent() string {
	if c.Service.UserAgent == "" {
		return fmt.Sprintf("rfcoverage/%s", c.Build.Version)
	}
	return fmt.Sprintf("%s (%s)", c.Service.UserAgent, c.Build.Version)
}
