package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration defaults.
const (
	DefaultTolerance            = 0.01
	DefaultMinSceneSeconds      = 0.05
	DefaultMinNormalizedSeconds = 1.0
	DefaultMaxRepairRounds      = 2
	DefaultAdvisoryTimeout      = 5 * time.Second
	DefaultAdvisoryRetries      = 1
	DefaultParallelism          = 4
	DefaultServerTimeout        = 30 * time.Second
)

// LoadConfig reads and parses the YAML configuration file. ${VAR}
// references are expanded from the environment before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses configuration bytes and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values with the built-in defaults.
func (c *Config) ApplyDefaults() {
	cc := &c.Compiler
	if cc.Tolerance <= 0 {
		cc.Tolerance = DefaultTolerance
	}
	if cc.MinSceneSeconds <= 0 {
		cc.MinSceneSeconds = DefaultMinSceneSeconds
	}
	if cc.MinNormalizedSeconds <= 0 {
		cc.MinNormalizedSeconds = DefaultMinNormalizedSeconds
	}
	if cc.MaxRepairRounds <= 0 {
		cc.MaxRepairRounds = DefaultMaxRepairRounds
	}
	if cc.AdvisoryTimeout <= 0 {
		cc.AdvisoryTimeout = DefaultAdvisoryTimeout
	}
	if cc.AdvisoryRetries < 0 {
		cc.AdvisoryRetries = 0
	} else if cc.AdvisoryRetries == 0 {
		cc.AdvisoryRetries = DefaultAdvisoryRetries
	}
	if cc.RequireGeneratedAssetJobs == nil {
		on := true
		cc.RequireGeneratedAssetJobs = &on
	}

	if c.Dispatch.Parallelism <= 0 {
		c.Dispatch.Parallelism = DefaultParallelism
	}
	for name, server := range c.Servers {
		if server.Name == "" {
			server.Name = name
		}
		if server.Transport == "" {
			server.Transport = "http"
			if len(server.Command) > 0 {
				server.Transport = "stdio"
			}
		}
		if server.Timeout <= 0 {
			server.Timeout = DefaultServerTimeout
		}
		c.Servers[name] = server
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// GeneratedAssetJobsRequired reports the effective generated-asset job rule.
func (c CompilerConfig) GeneratedAssetJobsRequired() bool {
	return c.RequireGeneratedAssetJobs == nil || *c.RequireGeneratedAssetJobs
}
