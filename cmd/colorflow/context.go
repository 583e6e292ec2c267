package main

import (
	"strings"
	"sync"

	"colorflow/internal/config"
)

type commandContext struct {
	serverFlag *string
	configFlag *string
	userFlag   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(serverFlag, configFlag, userFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
		userFlag:   userFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// client resolves the orchestrator base URL, preferring --server over the
// configured bind address.
func (c *commandContext) client() (*apiClient, error) {
	base := ""
	if c.serverFlag != nil {
		base = strings.TrimSpace(*c.serverFlag)
	}
	if base == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		bind := strings.TrimSpace(cfg.Server.Bind)
		if strings.HasPrefix(bind, ":") {
			bind = "127.0.0.1" + bind
		}
		base = "http://" + bind
	}

	user := ""
	if c.userFlag != nil {
		user = strings.TrimSpace(*c.userFlag)
	}
	return newAPIClient(base, user), nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
