package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads and validates an AppConfig from a YAML file. Unset friction and
// strategy fields fall back to defaults before validation.
func Load(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, errors.Wrapf(err, "read config %s", path)
	}

	cfg := AppConfig{
		Backtest: DefaultBacktestConfig(),
		Strategy: StrategyConfig{Name: "marketmaker", MarketMaker: DefaultMarketMakerConfig()},
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, errors.Wrapf(err, "parse config %s", path)
	}
	if cfg.Backtest.OnDataError == "" {
		cfg.Backtest.OnDataError = DataErrorSkip
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// Save writes the config as YAML, used by the interactive setup wizard.
func Save(path string, cfg AppConfig) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}
