package configx

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// reloadDebounce guards against the double-fire some filesystems produce
// for a single save (the teacher's thushan-olla config loader hits the
// same issue and works around it with a sleep-then-reload; viper's
// OnConfigChange has the identical symptom here).
const reloadDebounce = 500 * time.Millisecond

// HotReloadable is implemented by a config type that can report its own
// hot-reload toggle. When T implements it, Load decides whether to arm
// the fsnotify watch from the freshly loaded value itself rather than a
// value the caller computed before the file was read.
type HotReloadable interface{ WantsHotReload() bool }

// Load reads path via viper into a T pre-seeded with the store's current
// value (keys absent from the file keep that value), layering envPrefix-prefixed
// environment variables over the file (dot-to-underscore key replacement,
// viper.AutomaticEnv), and applies it to store. Grounded on
// thushan-olla's internal/config.Load, which composes the same
// viper-file-plus-env-overlay idiom named in SPEC_FULL.md §2.
//
// If the loaded T implements HotReloadable and WantsHotReload reports
// true, subsequent on-disk edits to path are picked up via
// viper.WatchConfig (which wraps fsnotify) and re-applied to store;
// spec.md §5's "loaded at startup, immutable" guarantee holds exactly
// when it reports false, since WatchConfig is never armed.
func Load[T any](path, envPrefix string, store *Store[T]) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("configx: read config: %w", err)
	}
	seed := store.Current()
	parsed := seed
	if err := v.Unmarshal(&parsed); err != nil {
		return fmt.Errorf("configx: decode config: %w", err)
	}
	if err := store.Apply(parsed); err != nil && err != ErrNoChange {
		return err
	}
	hr, ok := any(parsed).(HotReloadable)
	if !ok || !hr.WantsHotReload() {
		return nil
	}

	var mu sync.Mutex
	var last time.Time
	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		mu.Lock()
		now := time.Now()
		if now.Sub(last) < reloadDebounce {
			mu.Unlock()
			return
		}
		last = now
		mu.Unlock()

		next := seed
		if err := v.Unmarshal(&next); err != nil {
			store.notify(ChangeEvent{Err: err, Timestamp: time.Now()})
			return
		}
		_ = store.Apply(next)
	})
	return nil
}
