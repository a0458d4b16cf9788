package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quorumbot/quorum/internal/bot"
	"github.com/quorumbot/quorum/internal/cache"
	"github.com/quorumbot/quorum/internal/moderation/announce"
	"github.com/quorumbot/quorum/internal/moderation/archive"
	"github.com/quorumbot/quorum/internal/moderation/escalation"
	"github.com/quorumbot/quorum/internal/moderation/executor"
	"github.com/quorumbot/quorum/internal/moderation/reaction"
	"github.com/quorumbot/quorum/internal/moderation/vote"
	"github.com/quorumbot/quorum/internal/redis"
	"github.com/quorumbot/quorum/internal/setup"
	workermod "github.com/quorumbot/quorum/internal/worker/moderation"
	"github.com/quorumbot/quorum/internal/worker/unmute"
	"github.com/sourcegraph/conc"
	"github.com/urfave/cli/v3"
)

const (
	// BotLogDir specifies where bot log files are stored.
	BotLogDir = "logs/bot_logs"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "quorum",
		Usage: "Start the community self-moderation bot",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return runBot(ctx)
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runBot wires the engine and supervises the gateway client and the
// two reconciliation loops until an interrupt arrives.
func runBot(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, BotLogDir)
	if err != nil {
		return err
	}
	defer app.Cleanup(ctx)

	cfg := &app.Config.Bot.SelfMod
	repo := app.DB.Model()
	logger := app.Logger

	engine := escalation.New(cfg)
	snapshots := reaction.NewService(app.Platform, logger)
	archiver := archive.NewService(app.Platform, &cfg.Archive, logger)
	announcer := announce.NewService(app.Platform, engine, logger)
	unmuteWorker := unmute.New(repo.Vote(), app.Platform, cfg, logger)
	exec := executor.New(
		repo.Vote(), repo.History(), repo.Setting(), archiver, unmuteWorker,
		announcer, app.Platform, engine, logger,
	)
	voteWorker := workermod.New(
		repo.Vote(), repo.Setting(), repo.History(),
		snapshots, exec, announcer, cfg, logger,
	)
	voteManager := vote.NewManager(repo.Vote(), repo.History(), engine, cfg, logger)

	cacheClient, err := app.RedisManager.GetClient(redis.CacheDBIndex)
	if err != nil {
		return err
	}

	channels := cache.NewChannelCache(cacheClient, repo.Setting(), logger)

	discordBot, err := bot.New(
		app.Config.Bot.Discord.Token,
		voteManager, repo.Vote(), repo.Setting(), channels,
		app.Platform, announcer, logger,
	)
	if err != nil {
		return err
	}

	if err := discordBot.Start(ctx); err != nil {
		return err
	}

	var wg conc.WaitGroup
	wg.Go(func() { voteWorker.Start(ctx) })
	wg.Go(func() { unmuteWorker.Start(ctx) })

	log.Println("Bot started. Waiting for interrupt signal to shut down.")
	<-ctx.Done()

	wg.Wait()
	discordBot.Close(context.Background())

	return nil
}
