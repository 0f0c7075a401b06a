package startdownload

import (
	"encoding/json"
	"strings"

	"dlnotify/internal/config"
)

// Policy selects which audience receives a download-start notification.
type Policy string

const (
	PolicyAdmin Policy = "admin"
	PolicyUser  Policy = "user"
	PolicyBoth  Policy = "both"
	PolicyAll   Policy = "all"
)

// ParsePolicy matches s exactly, so "Admin" is not "admin". An empty value
// means PolicyAdmin. Unknown values are returned verbatim with ok=false; a
// dispatcher holding one posts nothing.
func ParsePolicy(s string) (p Policy, ok bool) {
	if s == "" {
		return PolicyAdmin, true
	}
	p = Policy(s)
	return p, p.Valid()
}

func (p Policy) Valid() bool {
	switch p {
	case PolicyAdmin, PolicyUser, PolicyBoth, PolicyAll:
		return true
	}
	return false
}

func (p Policy) includesAdmins() bool { return p == PolicyAdmin || p == PolicyBoth }
func (p Policy) includesUser() bool   { return p == PolicyUser || p == PolicyBoth }

// Config is the plugin's own settings block under plugins.<name>.config.
// The enabled flag lives on the host envelope next to it.
type Config struct {
	Type      string `json:"type"`
	AdminUser string `json:"adminuser"`
}

// Settings is the immutable snapshot a Dispatcher is built from.
// Reconfiguring means building a new Dispatcher from new Settings.
type Settings struct {
	Enabled    bool
	Policy     Policy
	AdminUsers []string
}

// Settings derives the dispatcher snapshot from the raw config.
func (c Config) Settings(enabled bool) Settings {
	p, _ := ParsePolicy(c.Type)
	return Settings{
		Enabled:    enabled,
		Policy:     p,
		AdminUsers: SplitAdminUsers(c.AdminUser),
	}
}

// SplitAdminUsers splits a comma-delimited list, trimming blanks and dropping
// empty entries. Order is preserved; duplicates are kept.
func SplitAdminUsers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsAdmin reports whether user is listed in AdminUsers.
func (s Settings) IsAdmin(user string) bool {
	user = strings.TrimSpace(user)
	if user == "" {
		return false
	}
	for _, a := range s.AdminUsers {
		if a == user {
			return true
		}
	}
	return false
}

// DefaultConfig is the host entry a fresh install starts from: disabled,
// admin policy, no admin users.
func DefaultConfig() config.PluginConfigRaw {
	b, _ := json.Marshal(Config{Type: string(PolicyAdmin), AdminUser: ""})
	return config.PluginConfigRaw{Enabled: false, Config: b}
}
