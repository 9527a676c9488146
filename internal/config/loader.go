package config

import (
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/samber/oops"

	"github.com/openkcm/tenant-lifecycle/internal/constants"
)

//nolint:mnd
var defaultConfig = map[string]any{
	"EventBus": map[string]any{
		"Queue":           "lifecycle",
		"Concurrency":     10,
		"MaxRedeliveries": 5,
	},
	"Patcher": map[string]any{
		"Kubectl":         "kubectl",
		"Parallelism":     4,
		"NamespaceSource": "registry",
	},
	"Jobs": map[string]any{
		"Provisioning":   map[string]any{"Timeout": "30m"},
		"Deprovisioning": map[string]any{"Timeout": "30m"},
	},
}

func LoadConfig(opts ...commoncfg.Option) (*Config, error) {
	cfg := &Config{}

	// Only the last of repeated options takes effect, callers may override these
	options := make([]commoncfg.Option, 0, 2+len(opts))
	options = append(options,
		commoncfg.WithDefaults(defaultConfig),
		commoncfg.WithPaths(
			constants.DefaultConfigPath1,
			constants.DefaultConfigPath2,
			".",
		),
	)

	options = append(options, opts...)

	loader := commoncfg.NewLoader(
		cfg,
		options...,
	)

	err := loader.LoadConfig()
	if err != nil {
		return nil, oops.Wrapf(err, "failed to load config")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, oops.Wrapf(err, "failed to validate config")
	}

	return cfg, nil
}
