package app

// Config holds runtime wiring options for building a node.
type Config struct {
	Port     int    // UDP discovery and TCP chat port
	Home     string // state dir, e.g. $HOME/.parley; the log file lives here
	LogLevel string // debug, info, warn, error
}
