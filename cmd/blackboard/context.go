package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/yungbote/blackboard-backend/internal/app"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     app.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (app.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = app.LoadConfig(path)
	})
	return c.config, c.configErr
}

// logger builds a logger for one-shot commands.
func (c *commandContext) logger() (app.Config, *logger.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
