package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"parley/internal/app"
	"parley/internal/node"
	"parley/internal/tui"
)

var (
	port     int
	home     string
	logLevel string
)

func Execute() error {
	root := &cobra.Command{
		Use:   "parley",
		Short: "Encrypted peer-to-peer chat for your local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".parley")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			wire, err := app.NewWire(app.Config{
				Port:     port,
				Home:     home,
				LogLevel: logLevel,
			})
			if err != nil {
				return err
			}
			defer wire.Close()

			return tui.Run(wire)
		},
	}

	root.Flags().IntVar(&port, "port", node.DefaultPort, "UDP discovery and TCP chat port")
	root.Flags().StringVar(&home, "home", "", "state dir (default ~/.parley)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	return root.Execute()
}
