// Package eventbus defines the host event contract the plugins consume:
// event kinds, the typed NoticeMessage payload, and an explicit handler
// Registry used to route host events to plugin handlers.
package eventbus
