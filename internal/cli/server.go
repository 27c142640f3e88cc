package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/config"
	"forum-quiz-service/internal/domain"
	"forum-quiz-service/internal/infra/memory"
	pgstore "forum-quiz-service/internal/infra/postgres"
	redisbank "forum-quiz-service/internal/infra/redis"
	transport "forum-quiz-service/internal/transport/http"
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

	log := newLogger(cfg.Log.Level)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	bankTTL := config.Duration(cfg.Quiz.BankTTL, 10*time.Minute)

	var store app.Store
	var source app.QuestionSource
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		pg := pgstore.NewStore(pool)
		store = pg
		if redisClient != nil {
			source = redisbank.NewQuestionBank(redisClient, pg, bankTTL)
		} else {
			source = memory.NewQuestionBank(pg, bankTTL)
		}
	} else {
		mem := memory.NewStore(sampleQuestions())
		store = mem
		source = mem
	}

	quizCfg := app.Config{
		QuestionTimeout: config.Duration(cfg.Quiz.QuestionTimeout, 60*time.Second),
		QuestionBreak:   config.Duration(cfg.Quiz.QuestionBreak, 30*time.Second),
		TotalQuestions:  cfg.Quiz.TotalQuestions,
	}
	if quizCfg.TotalQuestions <= 0 {
		quizCfg.TotalQuestions = 10
	}

	hub := transport.NewHub()
	service := app.NewQuizService(store, source, hub, quizCfg, log)
	wsHandler := transport.NewWSHandler(service, hub, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// sampleQuestions seeds the in-memory store for demos without Postgres.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Prompt: "Which river is the longest in Africa?", Answer: "Nile", Category: "geography"},
		{ID: 2, Prompt: "Who wrote Eugene Onegin?", Answer: "Alexander Pushkin", Category: "literature"},
		{ID: 3, Prompt: "What is the chemical symbol for gold?", Answer: "Au", Category: "science"},
	}
}
