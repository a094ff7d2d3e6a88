package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/infra/memory"
	"quiz-session-engine/internal/infra/postgres"
	infraredis "quiz-session-engine/internal/infra/redis"
	"quiz-session-engine/internal/infra/sqlite"
	transport "quiz-session-engine/internal/transport/http"
)

func newStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}
}

// backends holds the wired storage for one server process.
type backends struct {
	quizzes  app.QuizRepository
	attempts app.AttemptStore
	sessions app.SessionRepository
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends picks storage per concern. Postgres wins over sqlite,
// redis over process memory, and the built-in sample quizzes are used
// when neither postgres nor a quiz file is configured.
func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, err
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			b.close()
			return nil, err
		}
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
	}

	var loader memory.QuizLoader
	switch {
	case pool != nil:
		loader = postgres.NewQuizLoader(pool)
		logger.Info("quizzes from postgres")
	case cfg.Quiz.File != "":
		fileLoader, err := memory.LoadQuizFile(cfg.Quiz.File)
		if err != nil {
			b.close()
			return nil, err
		}
		loader = fileLoader
		logger.Info("quizzes from file", "path", cfg.Quiz.File, "count", len(fileLoader.IDs()))
	default:
		loader = memory.SampleQuizzes()
		logger.Info("quizzes from built-in samples")
	}

	if redisClient != nil {
		b.quizzes = infraredis.NewQuizRepository(redisClient, loader, cfg.Quiz.TTL)
		b.sessions = infraredis.NewSessionStore(redisClient, cfg.Redis.TTL)
	} else {
		b.quizzes = memory.NewQuizRepository(loader, cfg.Quiz.TTL)
		b.sessions = memory.NewSessionStore()
	}

	switch {
	case pool != nil:
		b.attempts = postgres.NewAttemptStore(pool)
	case cfg.SQLite.Path != "":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		b.attempts = store
	case redisClient != nil:
		b.attempts = infraredis.NewAttemptStore(redisClient)
	default:
		b.attempts = memory.NewAttemptStore()
	}
	return b, nil
}

func runServer(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	grader := app.NewGrader(b.quizzes, b.attempts, app.GradingConfig{
		HighScoreThreshold: cfg.Grading.HighScoreThreshold,
		LevelStep:          cfg.Grading.LevelStep,
		LeaderboardSize:    cfg.Grading.LeaderboardSize,
	})
	service := app.NewSessionService(b.sessions, b.quizzes, grader, app.SessionConfig{
		DefaultTimeLimit: cfg.Session.DefaultTimeLimit,
		TickInterval:     cfg.Session.TickInterval,
		SubmitTimeout:    cfg.Session.SubmitTimeout,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           transport.NewRouter(service, logger),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz session server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
