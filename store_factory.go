package countd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/countd/internal/notify"
	"pkt.systems/countd/internal/notify/pubsubnotify"
	"pkt.systems/countd/internal/notify/redisnotify"
	"pkt.systems/countd/internal/store"
	"pkt.systems/countd/internal/store/disk"
	"pkt.systems/countd/internal/store/memory"
	"pkt.systems/countd/internal/store/redisstore"
)

func openBackend(cfg Config) (store.Backend, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("parse store URL: %w", err)
	}
	switch u.Scheme {
	case "memory", "mem", "":
		return memory.New(), nil
	case "disk":
		dir := u.Path
		if u.Host != "" {
			dir = u.Host + u.Path
		}
		return disk.New(disk.Config{Dir: dir})
	case "redis", "rediss":
		return redisstore.New(redisstore.Config{URL: cfg.Store})
	default:
		return nil, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
}

func openNotifier(ctx context.Context, cfg Config, logger pslog.Logger, onError func(error)) (notify.Notifier, error) {
	u, err := url.Parse(cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("parse queue URL: %w", err)
	}
	switch u.Scheme {
	case "log", "":
		return &notify.Log{Logger: logger}, nil
	case "pubsub":
		topic := strings.Trim(u.Path, "/")
		return pubsubnotify.New(ctx, pubsubnotify.Config{
			ProjectID: u.Host,
			Topic:     topic,
			Logger:    logger,
			OnError:   onError,
		})
	case "redisq":
		redisURL := *u
		redisURL.Scheme = "redis"
		key := u.Query().Get("key")
		query := redisURL.Query()
		query.Del("key")
		redisURL.RawQuery = query.Encode()
		return redisnotify.New(redisnotify.Config{URL: redisURL.String(), Key: key})
	default:
		return nil, fmt.Errorf("queue scheme %q not supported", u.Scheme)
	}
}
