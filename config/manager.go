package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Manager owns the on-disk config file. Every accepted change, whether from
// Update or from an external edit, reaches the listener as a Change naming
// the sections it touched. Edits that touch nothing are dropped, which also
// swallows the watcher echo of the manager's own writes.
type Manager struct {
	path     string
	logger   *zap.Logger
	debounce time.Duration

	mu       sync.RWMutex
	cfg      Config
	revision uint64
	onChange func(Change)
	watching bool
}

type managerOptions struct {
	configPath    string
	initialConfig *Config
	debounce      time.Duration
	logger        *zap.Logger
}

type ManagerOption func(*managerOptions)

func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := managerOptions{
		debounce: 300 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	path := options.configPath
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := readConfig(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = *DefaultConfigWithRoot(filepath.Dir(path))
		if options.initialConfig != nil {
			cfg = *options.initialConfig
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &Manager{
		path:     path,
		logger:   options.logger,
		debounce: options.debounce,
		cfg:      cfg,
	}, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// Revision counts the changes applied since the manager was created.
func (m *Manager) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}

// UpdateFromJSON applies a full or partial JSON document on top of the
// current config.
func (m *Manager) UpdateFromJSON(jsonStr string) error {
	cfg := m.Get()
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(cfg)
}

// Update validates cfg, persists it and notifies the listener. A cfg equal to
// the current one is a no-op and leaves the file untouched.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if Diff(m.Get(), cfg) == 0 {
		return nil
	}
	if err := writeConfigFile(m.path, cfg); err != nil {
		return err
	}
	m.apply(cfg)
	return nil
}

// Watch follows external edits of the config file until ctx ends. onChange
// also receives changes made through Update. Calling Watch again only swaps
// the listener.
func (m *Manager) Watch(ctx context.Context, onChange func(Change)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.stopWatching()
		return err
	}
	// The directory is watched so that editors replacing the file by rename
	// keep being followed.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		m.stopWatching()
		return fmt.Errorf("watch config dir: %w", err)
	}
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) stopWatching() {
	m.mu.Lock()
	m.watching = false
	m.mu.Unlock()
}

// watchLoop owns one debounce timer; a burst of events yields one reload on
// this goroutine.
func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer m.stopWatching()
	defer watcher.Close()

	timer := time.NewTimer(m.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) ||
				evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(m.debounce)
		case <-timer.C:
			m.reloadFromDisk()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) reloadFromDisk() {
	cfg, err := readConfig(m.path)
	if errors.Is(err, os.ErrNotExist) {
		// A deleted file is recreated from what is live, not from defaults.
		if err := writeConfigFile(m.path, m.Get()); err != nil {
			m.logger.Error("config recreate failed", zap.Error(err))
		}
		return
	}
	if err != nil {
		m.logger.Error("config reload failed", zap.Error(err))
		return
	}
	if ch, ok := m.apply(cfg); ok {
		m.logger.Info("config reloaded",
			zap.String("path", m.path),
			zap.Stringer("sections", ch.Sections),
			zap.Uint64("revision", m.Revision()))
	}
}

// apply swaps in cfg and notifies the listener outside the lock.
func (m *Manager) apply(cfg Config) (Change, bool) {
	m.mu.Lock()
	ch := Change{Old: m.cfg, New: cfg, Sections: Diff(m.cfg, cfg)}
	if ch.Sections == 0 {
		m.mu.Unlock()
		return ch, false
	}
	m.cfg = cfg
	m.revision++
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(ch)
	}
	return ch, true
}

// readConfig decodes path over the defaults rooted at its directory, so keys
// missing from the file keep their default, and validates the result.
func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "CortexQuant", "config.json"), nil
}

// writeConfigFile replaces path atomically. The temp file is created 0600
// because the config carries API keys.
func writeConfigFile(path string, cfg Config) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err = enc.Encode(&cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush config: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, "config.json")
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) {
		o.initialConfig = cfg
	}
}

func WithLogger(logger *zap.Logger) ManagerOption {
	return func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
