package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	logx "dlnotify/pkg/logx"
)

var ErrNoPath = errors.New("config path is empty")

// Validator vets a parsed config before it is committed.
type Validator func(ctx context.Context, cfg *Config) error

const validateTimeout = 5 * time.Second

// ConfigManager holds the committed host config and republishes it to
// subscribers when the file changes.
type ConfigManager struct {
	path     string
	debounce time.Duration

	log       logx.Logger
	validator Validator

	mu   sync.RWMutex
	cfg  *Config
	hash uint64 // content hash of cfg; identical rewrites are not republished

	subs subscribers
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, debounce: 250 * time.Millisecond, log: logx.Nop()}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
	m.subs.log = log
}

// SetValidator installs the gate Reload runs before committing.
func (m *ConfigManager) SetValidator(fn Validator) { m.validator = fn }

// Parse reads and decodes the file without committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	if strings.TrimSpace(m.path) == "" {
		return nil, ErrNoPath
	}
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Decode parses JSON, or YAML when path ends in .yaml/.yml. Unknown keys and
// trailing data are errors.
func Decode(path string, b []byte) (*Config, error) {
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	switch err := dec.Decode(&struct{}{}); {
	case err == io.EOF:
		return &cfg, nil
	case err == nil:
		return nil, errors.New("invalid config: trailing data")
	default:
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
}

// Load parses and commits without publishing. Used at startup.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	h := contentHash(cfg)
	m.mu.Lock()
	m.cfg, m.hash = cfg, h
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel that receives each published config. A slow
// subscriber only ever sees the newest one.
func (m *ConfigManager) Subscribe(buffer int) chan *Config { return m.subs.add(buffer) }

// Unsubscribe removes and closes ch.
func (m *ConfigManager) Unsubscribe(ch chan *Config) { m.subs.remove(ch) }

// Reload parses the file and, when its content differs from the committed
// config and the validator accepts it, commits and publishes it. It reports
// whether a config was published.
func (m *ConfigManager) Reload(ctx context.Context) (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, err
	}

	h := contentHash(cfg)
	m.mu.RLock()
	same := h != 0 && h == m.hash
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return false, nil
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			return false, fmt.Errorf("config rejected: %w", err)
		}
	}

	m.Commit(cfg)
	n := m.subs.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.Int("subscribers", n))
	return true, nil
}

func contentHash(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
