// Package main is the entry point of the application
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tecu23/minesweeper-server/internal/auth"
	"github.com/tecu23/minesweeper-server/pkg/config"
	"github.com/tecu23/minesweeper-server/pkg/events"
	"github.com/tecu23/minesweeper-server/pkg/game"
	"github.com/tecu23/minesweeper-server/pkg/janitor"
	"github.com/tecu23/minesweeper-server/pkg/manager"
	"github.com/tecu23/minesweeper-server/pkg/repository"
	"github.com/tecu23/minesweeper-server/pkg/results"
	"github.com/tecu23/minesweeper-server/pkg/server"
)

var (
	flagDebug  bool
	flagPort   string
	flagConfig string
)

// application encapsulates global dependencies
type application struct {
	Auth       *auth.BearerAuth
	Logger     *zap.Logger
	Config     *config.Config
	Publisher  *events.Publisher
	Repository *repository.InMemorySessionRepository
	Hub        *server.Hub
	Manager    *manager.Manager
	Janitor    *janitor.Janitor
	Dispatcher *results.Dispatcher
	Ledger     *results.Ledger
	Server     *http.Server

	upgrader  websocket.Upgrader
	stop      context.CancelFunc
	StartTime time.Time
}

var rootCmd = &cobra.Command{
	Use:   "minesweeper-server",
	Short: "Server-authoritative minesweeper over websockets",
	Long: `Runs the minesweeper game server.

Every player gets an independent board held in memory. Clients connect to
/ws with their session id and play by sending revealCell, chordAction,
toggleFlag and restartGame events.

Settings are read from defaults, then the --config YAML file, then .env and
the environment (PORT, API_URL, ADMIN_SECRET, FRONTEND_URL, LEDGER_PATH),
then the flags below.

Examples:
  minesweeper-server
  minesweeper-server --port 8080 --debug
  minesweeper-server --config ./configs/server.yaml`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&flagPort, "port", "", "server port (overrides config and PORT)")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = flagDebug
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize logger
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}

	app.start()
	return app.serve()
}

// newApplication wires every component. Nothing runs until start is called.
func newApplication(cfg *config.Config, logger *zap.Logger) (*application, error) {
	// Initialize event publisher
	publisher := events.NewPublisher()
	publisher.SubscribeAll(func(e events.Event) {
		logger.Debug("lifecycle event",
			zap.String("type", string(e.Type)),
			zap.String("session_id", e.SessionID),
			zap.Any("payload", e.Payload))
	})

	// Initialize repository
	repo := repository.NewInMemoryRepository(logger)

	reporter, ledger, err := buildReporter(cfg.Reporter, logger)
	if err != nil {
		return nil, err
	}
	dispatcher := results.NewDispatcher(
		reporter,
		cfg.Reporter.MaxInFlight,
		cfg.Reporter.Timeout,
		cfg.Reporter.Fallback,
		logger,
	)

	hub := server.NewHub(publisher, logger)

	jan := janitor.New(repo, hub, publisher, janitor.Settings{
		DisconnectGrace:    cfg.Janitor.DisconnectGrace,
		SweepInterval:      cfg.Janitor.SweepInterval,
		IdleThreshold:      cfg.Janitor.IdleThreshold,
		SweepDelay:         cfg.Janitor.SweepDelay,
		ForceIdleThreshold: cfg.Janitor.ForceIdleThreshold,
	}, logger)

	gm := manager.NewManager(repo, hub, hub, dispatcher, jan, publisher, manager.Settings{
		Rules: game.Rules{
			Size:                 cfg.Game.Size,
			MineCount:            cfg.Game.Mines,
			TrustChordCandidates: cfg.Game.TrustChordCandidates,
		},
		LevelDelay: cfg.Game.LevelDelay,
	}, logger)
	hub.SetHandler(gm)

	app := &application{
		Auth:       auth.NewBearerAuth(cfg.Server.AdminSecret),
		Logger:     logger,
		Config:     cfg,
		Publisher:  publisher,
		Repository: repo,
		Hub:        hub,
		Manager:    gm,
		Janitor:    jan,
		Dispatcher: dispatcher,
		Ledger:     ledger,
		StartTime:  time.Now(),
	}
	app.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     app.checkOrigin,
	}

	return app, nil
}

// buildReporter combines the configured outcome sinks. It returns a nil
// reporter when neither is configured.
func buildReporter(
	cfg config.ReporterConfig,
	logger *zap.Logger,
) (results.Reporter, *results.Ledger, error) {
	var sinks results.Fanout

	if cfg.APIURL != "" {
		httpReporter := results.NewHTTPReporter(cfg.APIURL, cfg.Timeout)
		sinks = append(sinks, httpReporter)
		logger.Info("Reporting outcomes to stats API", zap.String("endpoint", httpReporter.Endpoint()))
	}

	var ledger *results.Ledger
	if cfg.LedgerPath != "" {
		var err error
		ledger, err = results.OpenLedger(cfg.LedgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening outcome ledger: %w", err)
		}
		sinks = append(sinks, ledger)
		logger.Info("Recording outcomes in ledger", zap.String("path", cfg.LedgerPath))
	}

	switch len(sinks) {
	case 0:
		logger.Warn("No outcome reporter configured, outcomes are discarded")
		return nil, nil, nil
	case 1:
		return sinks[0], ledger, nil
	default:
		return sinks, ledger, nil
	}
}

// start runs the hub loop and the periodic sweep
func (app *application) start() {
	ctx, cancel := context.WithCancel(context.Background())
	app.stop = cancel

	go app.Hub.Run(ctx)
	go app.Janitor.Run(ctx)
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown(ctx context.Context) {
	// Shut down hub
	if app.stop != nil {
		app.stop()
	}

	if err := app.Dispatcher.Wait(ctx); err != nil {
		app.Logger.Warn("Outcome reports still in flight at shutdown", zap.Error(err))
	}

	if app.Ledger != nil {
		if err := app.Ledger.Close(); err != nil {
			app.Logger.Error("Failed to close outcome ledger", zap.Error(err))
		}
	}

	app.Logger.Info("All components shut down successfully")
}
