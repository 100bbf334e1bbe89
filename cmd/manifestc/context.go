package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/logging"
	"github.com/zhe.chen/manifest-compiler/internal/pipeline"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

const defaultConfigPath = "configs/manifestc.yaml"

// commandContext lazily loads the configuration and logger shared by all
// subcommands.
type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	once   sync.Once
	config *types.Config
	logger *zap.Logger
	err    error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

func (c *commandContext) ensure() (*types.Config, *zap.Logger, error) {
	c.once.Do(func() {
		cfg, err := loadConfig(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
			cfg.Logging.Level = level
		}
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			c.err = err
			return
		}
		c.config, c.logger = cfg, logger
	})
	return c.config, c.logger, c.err
}

// compiler builds a pipeline compiler from the configuration, wiring the
// advisory model when one is enabled.
func (c *commandContext) compiler() (*pipeline.Compiler, error) {
	cfg, logger, err := c.ensure()
	if err != nil {
		return nil, err
	}
	options, err := compilerOptions(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.OptionsFromConfig(cfg.Compiler), options...), nil
}

func (c *commandContext) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// loadConfig reads path, or the default path when it exists, or falls back to
// built-in defaults.
func loadConfig(path string) (*types.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); errors.Is(err, fs.ErrNotExist) {
			cfg := &types.Config{}
			cfg.ApplyDefaults()
			return cfg, nil
		}
		path = defaultConfigPath
	}
	return types.LoadConfig(path)
}
