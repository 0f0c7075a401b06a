package config

import (
	"bytes"
	"sort"
	"strings"

	logx "dlnotify/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured fields for logging, and (3) the names of plugins whose
// enabled flag or raw config changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 2)
	attrs := make([]logx.Field, 0, 6)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		!strings.EqualFold(oldCfg.Logging.Format, newCfg.Logging.Format) ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	names := map[string]struct{}{}
	for n := range oldCfg.Plugins {
		names[n] = struct{}{}
	}
	for n := range newCfg.Plugins {
		names[n] = struct{}{}
	}
	plugins := make([]string, 0, len(names))
	for n := range names {
		o, oOK := oldCfg.Plugins[n]
		c, cOK := newCfg.Plugins[n]
		if oOK != cOK || o.Enabled != c.Enabled || !bytes.Equal(bytes.TrimSpace(o.Config), bytes.TrimSpace(c.Config)) {
			plugins = append(plugins, n)
		}
	}
	sort.Strings(plugins)
	if len(plugins) > 0 {
		changed = append(changed, "plugins")
		attrs = append(attrs, logx.Strings("plugins.changed", plugins))
	}
	return changed, attrs, plugins
}
