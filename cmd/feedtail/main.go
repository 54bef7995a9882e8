package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/amiyamandal-dev/feedsync/internal/client"
	"github.com/amiyamandal-dev/feedsync/internal/config"
	"github.com/amiyamandal-dev/feedsync/internal/feed"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a config file (default ./configs/config.yaml)")
	feedID := pflag.StringP("feed", "f", "", "feed id, overrides feed.id")
	userID := pflag.StringP("user", "u", "", "user id, overrides api.user_id")
	userToken := pflag.StringP("token", "t", "", "user token, overrides api.user_token")
	markSeen := pflag.Bool("mark-seen", false, "mark every received item as seen")
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *feedID != "" {
		cfg.Feed.ID = *feedID
	}
	if *userID != "" {
		cfg.API.UserID = *userID
	}
	if *userToken != "" {
		cfg.API.UserToken = *userToken
	}
	if cfg.Feed.ID == "" || cfg.API.UserID == "" {
		fmt.Fprintln(os.Stderr, "A feed id and a user id are required")
		pflag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	c, err := client.FromConfig(cfg, log)
	if err != nil {
		log.Error("Failed to create client", "error", err)
		os.Exit(1)
	}

	f, err := c.Feeds().Initialize(cfg.Feed.ID, cfg.Feed.FeedClientOptions)
	if err != nil {
		log.Error("Failed to initialize feed", "feed_id", cfg.Feed.ID, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f.On(feed.ItemsReceived, func(e feed.Event) error {
		for _, item := range e.Items {
			log.Info("Item received",
				"source", e.Source.String(),
				"id", item.ID,
				"inserted_at", item.InsertedAt,
				"read", item.IsRead(),
				"seen", item.IsSeen(),
			)
		}
		log.Info("Badge counts",
			"total", e.Metadata.TotalCount,
			"unread", e.Metadata.UnreadCount,
			"unseen", e.Metadata.UnseenCount,
		)

		if *markSeen && len(e.Items) > 0 {
			// The handler runs on the fetching goroutine; write back off it
			items := e.Items
			go func() {
				if res := f.MarkAsSeen(ctx, items...); !res.OK() {
					log.Warn("Failed to mark items as seen", "error", res.Err)
				}
			}()
		}
		return nil
	})

	res := f.Fetch(ctx, feed.FetchOptions{})
	if res.Status != feed.FetchOK {
		log.Error("Initial fetch failed", "status", string(res.Status), "error", res.Err)
		os.Exit(1)
	}

	if err := f.ListenForUpdates(ctx); err != nil {
		log.Error("Failed to listen for updates", "error", err)
		os.Exit(1)
	}

	log.Info("Tailing feed, press Ctrl+C to stop", "feed_id", cfg.Feed.ID, "user_id", cfg.API.UserID)
	<-ctx.Done()

	if err := c.Teardown(context.Background()); err != nil {
		log.Warn("Teardown finished with errors", "error", err)
	}
	log.Info("Stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
