package logx

// Config selects the level and sinks of a Service.
type Config struct {
	Level   string
	Console bool
	// Format of console output: "text" (default) or "json".
	Format string
	File   FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const defaultFilePath = "./dlnotify.log"
