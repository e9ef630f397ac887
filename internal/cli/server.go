package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/config"
	"classquiz-service/internal/domain"
	infraamqp "classquiz-service/internal/infra/amqp"
	"classquiz-service/internal/infra/memory"
	"classquiz-service/internal/infra/postgres"
	infraredis "classquiz-service/internal/infra/redis"
	transport "classquiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// ledger is satisfied by every coin/card ledger backend.
type ledger interface {
	app.CoinLedger
	app.CardLedger
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cfg.LogLevel(),
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)

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
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		db = openBunDB(cfg.Postgres.URL)
		defer db.Close()
		if err := migrateDB(ctx, db); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		pgLoader := postgres.NewQuizLoader(pool)
		for _, quiz := range sampleQuizzes() {
			if err := pgLoader.SaveQuiz(ctx, quiz); err != nil {
				return err
			}
		}
		loader = pgLoader
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		redisQuizzes := infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		// the seed may have replaced quiz content cached by a previous run
		for _, quiz := range sampleQuizzes() {
			if err := redisQuizzes.Invalidate(ctx, quiz.ID); err != nil {
				return fmt.Errorf("invalidate cached quiz %s: %w", quiz.ID, err)
			}
		}
		quizRepo = redisQuizzes
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.RoomRepository
	if redisClient != nil {
		store = infraredis.NewRoomStore(redisClient, redisTTL)
	} else {
		store = memory.NewRoomStore()
	}

	var payouts ledger = memory.NewLedger()
	switch {
	case pool != nil:
		payouts = postgres.NewLedger(pool)
	case redisClient != nil:
		payouts = infraredis.NewLedger(redisClient)
	}

	var answers app.AnswerLog = memory.NewAnswerLog(10000)
	if db != nil {
		answers = postgres.NewAnswerLog(db)
	}

	var publishers app.Publishers
	if redisClient != nil {
		publishers = append(publishers, infraredis.NewSnapshotPublisher(redisClient, redisTTL))
	}
	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "quiz.rooms"
		}
		amqpPub, err := infraamqp.Dial(cfg.AMQP.URL, exchange)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
	}

	runCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var notifier *app.Notifier
	if len(publishers) > 0 {
		notifier = app.NewNotifier(publishers, cfg.Rooms.NotifyBuffer, logger)
		go notifier.Run(runCtx)
	}

	coordinator := app.NewCoordinator(store, quizRepo, app.Options{
		MinPlayers:  cfg.Rooms.MinPlayers,
		AutoAdvance: cfg.AutoAdvance(),
		Logger:      logger,
		Answers:     answers,
		Distributor: app.NewDistributor(payouts, payouts, logger),
		Notifier:    notifier,
	})
	driver := app.NewDriver(coordinator,
		config.TTLDuration(cfg.Rooms.Tick, 250*time.Millisecond),
		config.TTLDuration(cfg.Rooms.Retention, time.Hour),
		logger)
	go driver.Run(runCtx)

	handler := transport.NewRouter(coordinator, transport.RouterOptions{
		Logger:    logger,
		Identity:  transport.NewIdentityResolver(cfg.Auth.JWTSecret),
		RateLimit: rate.Limit(cfg.Server.RateLimit),
		RateBurst: cfg.Server.RateBurst,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// long-polls and websockets outlive a fixed write timeout
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("starting quiz room service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
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

	cancelWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds a demo question bank; with Postgres configured they are upserted into quizzes.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 10},
				{ID: "q2", Text: "What is the capital of France?", Options: []string{"Paris", "Rome", "Madrid"}, CorrectAnswer: "Paris", Points: 10},
				{ID: "q3", Text: "Which planet is the largest?", Options: []string{"Mars", "Jupiter", "Venus"}, CorrectAnswer: "Jupiter", Points: 20},
			},
		},
	}
}
