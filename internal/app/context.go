package app

import (
	"fmt"

	"ligscreen/internal/config"
)

// Overrides are command-line or environment values that replace config file entries.
// Empty fields leave the file value in place.
type Overrides struct {
	Target    string
	Catalog   string
	OutputDir string
	Device    string
}

// ResolveConfig loads the active config: an explicit path wins, otherwise
// ligscreen.yml in dir is used when present and the defaults otherwise.
// Overrides are applied last. The result is not validated.
func ResolveConfig(path, dir string, o Overrides) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(dir)
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve config: %w", err)
	}
	return o.apply(cfg), nil
}

func (o Overrides) apply(cfg config.Config) config.Config {
	if o.Target != "" {
		cfg.Target = o.Target
	}
	if o.Catalog != "" {
		cfg.Catalog = o.Catalog
	}
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
	if o.Device != "" {
		cfg.Tool.Device = o.Device
	}
	return cfg
}
