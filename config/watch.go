package config

import (
	"time"

	"github.com/agilira/argus"
)

// MinPollInterval is the smallest poll interval Watch accepts.
const MinPollInterval = 50 * time.Millisecond

// Watcher reloads a config file whenever it changes.
type Watcher struct {
	w *argus.Watcher
}

// Watch polls path and calls onChange with every successfully loaded
// version, starting with the current one. Files that fail to load or
// validate are reported to onError (if set) and otherwise ignored, so a
// bad edit never replaces a good configuration.
//
// The watcher is running when Watch returns; call Stop when done.
func Watch(path string, interval time.Duration, onChange func(Config), onError func(error)) (*Watcher, error) {
	if _, err := DetectFormat(path); err != nil {
		return nil, err
	}
	if interval < MinPollInterval {
		interval = MinPollInterval
	}

	handle := func(map[string]interface{}) {
		// Reload through Load so file and watcher share parsing and defaults.
		cfg, err := Load(path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	}

	w, err := argus.UniversalConfigWatcherWithConfig(path, handle, argus.Config{PollInterval: interval})
	if err != nil {
		return nil, newErrLoad(path, err)
	}
	if !w.IsRunning() {
		if err := w.Start(); err != nil {
			return nil, newErrLoad(path, err)
		}
	}
	return &Watcher{w: w}, nil
}

// Stop stops polling.
func (w *Watcher) Stop() error { return w.w.Stop() }
