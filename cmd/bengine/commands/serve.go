package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/bengine/bengine/internal/assets"
	"github.com/bengine/bengine/internal/config"
	"github.com/bengine/bengine/internal/server"
	"github.com/bengine/bengine/internal/store"
)

// ServeCommand implements the serve command.
func ServeCommand(args []string) error {
	var configPath string
	var port string
	var host string
	var debug bool

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" || arg == "-c" {
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		} else if arg == "--port" || arg == "-p" {
			if i+1 < len(args) {
				port = args[i+1]
				i++
			}
		} else if arg == "--host" {
			if i+1 < len(args) {
				host = args[i+1]
				i++
			}
		} else if arg == "--debug" {
			debug = true
		} else if strings.HasPrefix(arg, "-") {
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if host != "" {
		cfg.Server.Host = host
	}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port: %s", port)
		}
		cfg.Server.Port = p
	}
	if debug {
		cfg.Server.Debug = true
	}

	var logger *zap.Logger
	if cfg.Server.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	st, err := store.Open(cfg.Store.GetDriver(), cfg.Store.GetDSN())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := os.MkdirAll(cfg.Content.GetDir(), 0o755); err != nil {
		return fmt.Errorf("creating content directory: %w", err)
	}
	am := assets.NewManager(cfg.Content.GetDir(), nil, log)

	srv, err := server.New(cfg, st, am, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
