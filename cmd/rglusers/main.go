// rglusers is the sysop account browser. It opens the user store named
// in the gateway configuration and lets the operator disable logins and
// clear contact details.
//
// Usage:
//
//	rglusers [--config rgldir/rgl.jsonc]
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/stlalpha/rgl/internal/config"
	"github.com/stlalpha/rgl/internal/logging"
	"github.com/stlalpha/rgl/internal/user"
	"github.com/stlalpha/rgl/internal/usereditor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("rglusers", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "rgldir/rgl.jsonc", "path to the gateway configuration")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	// the TUI owns the screen, so log only to the configured file
	closer, err := logging.Init(logging.Options{Path: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer closer.Close()

	dir, err := user.Open(cfg.UserStore)
	if err != nil {
		return err
	}
	defer dir.Close()

	model, err := usereditor.New(dir)
	if err != nil {
		return fmt.Errorf("initializing editor: %w", err)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
