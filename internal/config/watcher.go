package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the current configuration and reloads it when the
// configuration file changes
type Manager struct {
	path          string
	debounce      time.Duration
	logger        *slog.Logger
	mu            sync.RWMutex
	currentConfig *Config
	subscribers   []func(*Config)
	watcher       *fsnotify.Watcher
	stopCh        chan struct{}
	loadFn        func(string) (*Config, error)
}

// NewManager creates a new configuration manager around an already loaded config
func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	return &Manager{
		path:          cfg.File,
		debounce:      500 * time.Millisecond,
		logger:        logger,
		currentConfig: cfg,
		subscribers:   make([]func(*Config), 0),
		stopCh:        make(chan struct{}),
		loadFn:        Load,
	}
}

// GetCurrentConfig returns a copy of the current configuration
func (m *Manager) GetCurrentConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	config := *m.currentConfig
	return &config
}

// Subscribe adds a callback function that will be called when configuration changes
func (m *Manager) Subscribe(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscribers = append(m.subscribers, callback)
}

// Start watches the configuration file for changes. It is a no-op when the
// configuration did not come from a file or hot reload is disabled.
func (m *Manager) Start() error {
	if m.path == "" || !m.currentConfig.HotReload {
		m.logger.Info("Configuration hot reload disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", m.path, err)
	}

	m.watcher = watcher
	go m.watch()

	m.logger.Info("Watching configuration file", "path", m.path)
	return nil
}

// Stop stops watching the configuration file
func (m *Manager) Stop() {
	if m.watcher == nil {
		return
	}
	close(m.stopCh)
	m.watcher.Close()
}

func (m *Manager) watch() {
	target, _ := filepath.Abs(m.path)

	var timer *time.Timer
	for {
		select {
		case <-m.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			name, _ := filepath.Abs(event.Name)
			if name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(m.debounce, m.Reload)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("Config watcher error", "error", err)
		}
	}
}

// Reload re-reads the configuration file and notifies subscribers. An invalid
// file keeps the previous configuration.
func (m *Manager) Reload() {
	newConfig, err := m.loadFn(m.path)
	if err != nil {
		m.logger.Error("Failed to reload configuration, keeping previous", "path", m.path, "error", err)
		return
	}

	m.mu.Lock()
	m.currentConfig = newConfig
	subscribers := make([]func(*Config), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	m.logger.Info("Configuration reloaded",
		"path", m.path,
		"event_source", newConfig.EventSource,
		"event_lookback", newConfig.EventLookback.String(),
		"ownership_backend", newConfig.OwnershipBackend,
		"async_website", newConfig.AsyncWebsite)

	for _, subscriber := range subscribers {
		config := *newConfig
		subscriber(&config)
	}
}
