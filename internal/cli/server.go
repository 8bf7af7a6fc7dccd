package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/nats"
	"live-quiz-service/internal/realtime"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var notifier app.Notifier
	if cfg.Nats.URL != "" {
		n, err := nats.Connect(cfg.Nats.URL, cfg.Nats.Subject)
		if err != nil {
			return err
		}
		defer n.Close()
		notifier = n
		logger.Info("publishing game updates", zap.String("subject", cfg.Nats.Subject))
	}

	rooms := realtime.NewRooms()
	hub := transport.NewHub(rooms, logger.Named("hub"))
	timers := app.NewSessionTimer(config.Duration(cfg.Game.TickInterval, time.Second))
	defer timers.CancelAll()

	controller := app.NewGameController(app.Dependencies{
		Games:     st.games,
		Questions: st.questions,
		Stats:     st.stats,
		Presence:  st.presence,
		Rooms:     hub,
		Timers:    timers,
		Notifier:  notifier,
		Logger:    logger.Named("game"),
	}, app.Settings{
		QuestionTimeLimit: cfg.Game.QuestionTimeLimit,
		StartGrace:        config.Duration(cfg.Game.StartGrace, 2*time.Second),
		AnswerBuffer:      config.Duration(cfg.Game.AnswerBuffer, 3*time.Second),
	})

	janitor, err := app.NewJanitor(controller, cfg.Game.SweepSchedule, logger.Named("janitor"))
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret)
	if !auth.Enabled() {
		logger.Warn("auth.jwt_secret not set; identities are taken from query parameters")
	}
	wsHandler := transport.NewWSHandler(controller, hub, auth, logger.Named("ws"))
	router := transport.NewRouter(transport.RouterConfig{
		Service:        controller,
		WS:             wsHandler,
		Auth:           auth,
		Logger:         logger.Named("http"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Log.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
