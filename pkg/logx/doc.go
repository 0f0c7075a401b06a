// Package logx is dlnotify's structured logging on top of zerolog.
//
// Logger is a value type carrying fixed fields; every event gets a short
// file:line caller. A Service owns the console and file sinks and can swap
// them at runtime with Apply.
package logx
