// Package commands defines the parley CLI.
//
// There is a single root command: it starts the node (UDP peer discovery
// plus the TCP chat listener) and hands the terminal to the interactive UI,
// where connecting, accepting and chatting all happen.
//
// # Implementation
//
// The root command builds the dependency graph (registry, discovery
// service, listening node, logger) before the UI starts, so the prompt
// comes up with the background workers already running.
package commands
