// tracker-watch tails a user's notifications and the live project list from
// a running trackerd, keeping a small on-disk cache so a restart shows the
// last known state immediately.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/goevery/tracker/pkg/client"
	"go.uber.org/zap"
)

type Settings struct {
	ServerURL string `env:"TRACKER_URL,default=http://localhost:8000/tracker"`
	Token     string `env:"TRACKER_TOKEN,required=true"`
	UserId    string `env:"TRACKER_USER_ID,required=true"`
	CachePath string `env:"TRACKER_CACHE,default=tracker-watch.db"`
}

func websocketURL(serverURL string) string {
	wsURL := strings.Replace(serverURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)

	return strings.TrimSuffix(wsURL, "/") + "/websocket"
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		logger.Fatal("failed to parse settings from environment", zap.Error(err))
	}

	cache, err := client.OpenDiskCache(settings.CachePath)
	if err != nil {
		logger.Fatal("failed to open disk cache", zap.Error(err))
	}
	defer cache.Close()

	api := client.NewAPI(settings.ServerURL, settings.Token)

	transport := client.NewTransport(logger, websocketURL(settings.ServerURL), settings.Token, client.TransportOptions{})

	notifications := client.NewNotificationStore(logger, api, client.NotificationStoreOptions{
		Cache:    cache,
		CacheKey: "notifications:" + settings.UserId,
	})
	notifications.Bind(transport)

	projects := client.NewProjectStore(logger, api, client.ProjectStoreOptions{})
	projects.Bind(transport)

	transport.On(client.KindNotificationNew, func(event client.Event) {
		var n client.Notification
		if err := json.Unmarshal(event.Payload, &n); err != nil {
			return
		}

		logger.Info("notification",
			zap.String("id", n.Id),
			zap.String("title", n.Title),
			zap.String("message", n.Message),
			zap.Int("unread", notifications.UnreadCount()))
	})

	transport.On(client.KindImportProgress, func(event client.Event) {
		var progress client.ImportProgress
		if err := json.Unmarshal(event.Payload, &progress); err != nil {
			return
		}

		logger.Info("import progress",
			zap.String("importId", progress.ImportId),
			zap.Int("processed", progress.Processed),
			zap.Int("total", progress.Total),
			zap.Bool("done", progress.Done))
	})

	ctx := context.Background()

	err = transport.Connect(ctx)
	if err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer transport.Close()

	if err := transport.Subscribe(ctx, client.UserTopic(settings.UserId)); err != nil {
		logger.Fatal("failed to subscribe to notifications", zap.Error(err))
	}
	if err := transport.Subscribe(ctx, client.TopicProjects); err != nil {
		logger.Fatal("failed to subscribe to projects", zap.Error(err))
	}

	if err := notifications.Initialize(ctx); err != nil {
		logger.Warn("initial notification fetch failed, showing cached state", zap.Error(err))
	}
	if err := projects.Initialize(ctx); err != nil {
		logger.Warn("initial project fetch failed", zap.Error(err))
	}

	logger.Info("watching",
		zap.Int("unread", notifications.UnreadCount()),
		zap.Int("projects", len(projects.Entries())))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
