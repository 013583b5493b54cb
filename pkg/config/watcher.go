package config

import (
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/phi-labs/lambo/pkg/metrics"
)

// Watcher reloads the config file on write events, debounced by 1
// second to absorb editors that write a file in several syscalls
// (original_source configuration.rs's notify-based watcher uses the
// same debounce window). On any reload error the previous Snapshot
// stays live and a warning is logged (spec.md §7).
type Watcher struct {
	Path    string
	Log     *logrus.Logger
	Metrics *metrics.Registry
	OnLoad  func(*Snapshot)
}

func NewWatcher(path string, log *logrus.Logger, registry *metrics.Registry, onLoad func(*Snapshot)) *Watcher {
	return &Watcher{Path: path, Log: log, Metrics: registry, OnLoad: onLoad}
}

// Run blocks, watching Path until stop is closed.
func (w *Watcher) Run(stop <-chan struct{}) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.Path); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(time.Second, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(time.Second)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if w.Log != nil {
				w.Log.WithError(err).Warn("config watcher error")
			}
		case <-reload:
			snapshot, err := Load(w.Path, w.Log, w.Metrics)
			if err != nil {
				if w.Log != nil {
					w.Log.WithError(err).Warn("configuration reload failed, retaining previous snapshot")
				}
				continue
			}
			w.OnLoad(snapshot)
		}
	}
}
