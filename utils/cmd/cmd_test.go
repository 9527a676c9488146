package cmd_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/utils/cmd"
)

func buildCfg() *config.Config {
	return &config.Config{
		HTTP: config.HTTPServer{
			Address: "localhost:8082",
		},
		BaseConfig: commoncfg.BaseConfig{
			Logger: commoncfg.Logger{
				Format: "json",
				Level:  "info",
			},
		},
		Services: []config.Service{
			{Name: "catalog", URLPrefix: "catalog", Template: "catalog.yaml"},
		},
	}
}

func writeConfig(t *testing.T, cfg *config.Config) {
	t.Helper()

	bytes, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile("config.yaml", bytes, 0o600))
	t.Cleanup(func() { _ = os.Remove("config.yaml") })
}

func TestRunFunctionWithSigHandling(t *testing.T) {
	t.Run("Should exitCode 1 on config not found", func(t *testing.T) {
		exitCode := cmd.RunFuncWithSignalHandling(func(_ context.Context, _ *config.Config) error {
			return nil
		}, cmd.RunFlags{})

		require.Equal(t, 1, exitCode)
	})

	tests := []struct {
		name     string
		cfg      func() *config.Config
		run      func(context.Context, *config.Config) error
		exitCode int
	}{
		{
			name: "should exitCode 0 on successful run",
			cfg:  buildCfg,
			run: func(_ context.Context, cfg *config.Config) error {
				require.Len(t, cfg.Services, 1)
				return nil
			},
			exitCode: 0,
		},
		{
			name: "should exitCode 1 when the run fails",
			cfg:  buildCfg,
			run: func(context.Context, *config.Config) error {
				return errors.New("boom") //nolint:err113
			},
			exitCode: 1,
		},
		{
			name: "should exitCode 1 on an invalid config",
			cfg: func() *config.Config {
				cfg := buildCfg()
				cfg.Services = append(cfg.Services, cfg.Services[0])

				return cfg
			},
			run: func(context.Context, *config.Config) error {
				return nil
			},
			exitCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.cfg())

			exitCode := cmd.RunFuncWithSignalHandling(tt.run, cmd.RunFlags{})
			require.Equal(t, tt.exitCode, exitCode)
		})
	}
}
