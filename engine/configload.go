package engine

import "github.com/99souls/scrapefabric/engine/internal/configx"

// envPrefix is the SCRAPEFABRIC_<KEY> environment-variable namespace
// viper overlays onto the loaded YAML file, per SPEC_FULL.md §6.
const envPrefix = "SCRAPEFABRIC"

// ConfigStore is a hot-swappable, versioned, audited Config snapshot.
// Its zero value is not usable; construct one via LoadConfig.
type ConfigStore = configx.Store[Config]

// LoadConfig reads path as YAML into a Config (defaults pre-seeded,
// SCRAPEFABRIC_<KEY> environment variables taking precedence over the
// file), validates it, and returns a ConfigStore holding it as the
// current snapshot: version 2 if it differs from Defaults() (committed
// first as version 1), else version 1. If cfg.HotReload is true in the loaded
// file, subsequent edits to path are re-applied to the store
// automatically; see engine/internal/configx.Load.
func LoadConfig(path string) (*ConfigStore, error) {
	store, err := configx.NewStore(Defaults(), Config.Validate)
	if err != nil {
		return nil, err
	}
	if err := configx.Load(path, envPrefix, store); err != nil {
		return nil, err
	}
	return store, nil
}
