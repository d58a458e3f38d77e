// Package app wires application dependencies for the CLI.
//
// It builds the peer registry, discovery service and TCP node from Config,
// exposing them via the Wire struct for the UI to drive.
package app
