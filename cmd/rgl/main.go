// rgl is a roguelike game launcher run as the login shell of a shared
// account. It serves the configured menus on the terminal it was started
// on, lets visitors register and log in, and runs recorded games for them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/stlalpha/rgl/internal/config"
	"github.com/stlalpha/rgl/internal/files"
	"github.com/stlalpha/rgl/internal/logging"
	"github.com/stlalpha/rgl/internal/menu"
	"github.com/stlalpha/rgl/internal/recorder"
	"github.com/stlalpha/rgl/internal/session"
	"github.com/stlalpha/rgl/internal/terminalio"
	"github.com/stlalpha/rgl/internal/user"
	"github.com/stlalpha/rgl/internal/watch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rgl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, menusPath string
	var noWatch bool

	flagSet := pflag.NewFlagSet("rgl", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "rgldir/rgl.jsonc", "path to the gateway configuration")
	flagSet.StringVar(&menusPath, "menus", "", "menus file, overriding menus_file from the configuration")
	flagSet.BoolVar(&logging.DebugEnabled, "debug", os.Getenv("RGL_DEBUG") == "1", "enable debug logging")
	flagSet.BoolVar(&noWatch, "no-watch", false, "do not reload the menus file when it changes")
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
	if menusPath != "" {
		cfg.MenusFile = menusPath
	}

	closer, err := logging.Init(logging.Options{Path: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := menu.Options{StartMenu: cfg.StartMenu, PostLoginMenu: cfg.PostLoginMenu, Games: cfg.Games}
	doc, err := config.LoadMenus(cfg.MenusFile)
	if err != nil {
		return err
	}
	set, err := menu.Compile(doc, opts)
	if err != nil {
		return err
	}
	for _, id := range set.Unreachable {
		fmt.Fprintf(os.Stderr, "rgl: warning: menu %q is unreachable\n", id)
		log.Warn().Str("menu", id).Msg("menu is unreachable")
	}

	users, err := user.Open(cfg.UserStore)
	if err != nil {
		return err
	}
	defer users.Close()

	registry, err := session.NewRegistry(cfg.LiveDir)
	if err != nil {
		return err
	}

	term := terminalio.NewTerminal(os.Stdin, os.Stdout)
	interp := &menu.Interpreter{
		Users:        users,
		Prompt:       term,
		Out:          os.Stdout,
		UserdataRoot: cfg.UserdataRoot,
		FlashDelay:   cfg.FlashDelay.Std(),
		Games: &recorder.Launcher{
			Games:         cfg.Games,
			RecordingsDir: cfg.RecordingsDir,
			Registry:      registry,
			Terminal:      os.Stdin,
			Live:          os.Stdout,
			MaxFrame:      cfg.MaxFrame,
		},
		Editor: &files.Editor{
			Command: cfg.Editor.Command,
			Arg0:    cfg.Editor.Arg0,
			Stdin:   os.Stdin,
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
		},
		Spectator: &watch.Viewer{Registry: registry, In: os.Stdin, Out: os.Stdout},
	}
	engine := menu.NewEngine(set, interp, term, os.Stdout, cfg.Banner)

	if !noWatch {
		watcher := newMenuWatcher(cfg.MenusFile, opts, engine)
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Str("menus", cfg.MenusFile).Msg("menus hot reload disabled")
		} else {
			defer watcher.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGTERM)
	defer stop()

	log.Info().Str("menus", cfg.MenusFile).Int("count", set.Len()).Msg("rgl session starting")
	err = engine.Run(ctx, &session.Session{})
	if errors.Is(err, terminalio.ErrInputClosed) || errors.Is(err, context.Canceled) {
		log.Info().Err(err).Msg("terminal went away")
	}
	return err
}
