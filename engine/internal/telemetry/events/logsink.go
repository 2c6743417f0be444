package events

import (
	"github.com/99souls/scrapefabric/engine/internal/telemetry/logging"
)

// LogSink subscribes to the bus and writes every event through log as a
// structured line, until stop is closed. It is the default observer the
// engine facade wires up unless the caller registers its own.
func LogSink(bus Bus, log logging.Logger, stop <-chan struct{}) error {
	sub, err := bus.Subscribe(256)
	if err != nil {
		return err
	}
	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				e := log.Raw().Info()
				for k, v := range ev.Labels {
					e = e.Str(k, v)
				}
				e.Str("category", ev.Category).Str("type", ev.Type).Msg("event")
			case <-stop:
				return
			}
		}
	}()
	return nil
}
