package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Logging LoggingConfig              `json:"logging"`
	Plugins map[string]PluginConfigRaw `json:"plugins"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PluginConfigRaw is the host-owned envelope around a plugin's settings.
//
// Enabled gates whether the plugin is started and its event subscriptions
// are registered. Config is decoded by the plugin itself.
type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON disallows unknown fields so misspelled keys are caught
// during config reload instead of being silently ignored.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginConfigRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}

// Plugin returns the raw entry for name and whether it was present.
func (c *Config) Plugin(name string) (PluginConfigRaw, bool) {
	if c == nil || c.Plugins == nil {
		return PluginConfigRaw{}, false
	}
	p, ok := c.Plugins[name]
	return p, ok
}
