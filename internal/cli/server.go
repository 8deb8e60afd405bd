package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ardaongl/hsdarena-backend/internal/app"
	"github.com/ardaongl/hsdarena-backend/internal/auth"
	"github.com/ardaongl/hsdarena-backend/internal/config"
	"github.com/ardaongl/hsdarena-backend/internal/infra/memory"
	pgstore "github.com/ardaongl/hsdarena-backend/internal/infra/postgres"
	redisinfra "github.com/ardaongl/hsdarena-backend/internal/infra/redis"
	transport "github.com/ardaongl/hsdarena-backend/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type store interface {
	app.Store
	app.UserStore
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var st store
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		st = pgstore.NewStore(pool)
	} else {
		// No database configured: run from memory with demo content.
		mem := memory.NewStore()
		seedMemory(mem)
		st = mem
		log.Warn().Msg("postgres not configured, using in-memory store with demo data")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		quizzes = redisinfra.NewQuizCache(client, st, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(st, quizTTL)
	}

	clock := clockwork.NewRealClock()
	rooms := app.NewRegistry()
	coord := app.NewCoordinator(st, quizzes, rooms, clock)
	intake := app.NewIntake(st, coord, clock)
	tokens := auth.NewService(st, auth.Config{
		TeamSecret:  cfg.Auth.TeamSecret,
		AdminSecret: cfg.Auth.AdminSecret,
		TeamTTL:     config.TTLDuration(cfg.Auth.TeamTTL, time.Hour),
		AdminTTL:    config.TTLDuration(cfg.Auth.AdminTTL, 15*time.Minute),
	}, clock)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(coord, intake, rooms, tokens).ServeWS)
	transport.NewRESTHandler(coord, tokens).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz session server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
