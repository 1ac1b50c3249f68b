package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// reloadDebounce coalesces the write bursts editors and orchestrators produce
// when rewriting a file.
const reloadDebounce = 500 * time.Millisecond

// Watch monitors the configuration file and invokes onReload with the freshly
// loaded configuration after each change. Watching the parent directory keeps
// the watch alive across rename-based atomic writes. Blocks until ctx is
// cancelled.
func Watch(ctx context.Context, configFile string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(configFile)
	if err = watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(configFile)
	var timer *time.Timer
	reload := func() {
		cfg, loadErr := LoadConfig(configFile)
		if loadErr != nil {
			log.Errorf("config reload failed, keeping previous configuration: %v", loadErr)
			return
		}
		log.Infof("configuration reloaded from %s", configFile)
		onReload(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, reload)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config watcher error: %v", watchErr)
		}
	}
}
