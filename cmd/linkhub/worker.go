package main

import (
	"context"
	"net/http"
	"time"

	"LinkHub/global/config"
	"LinkHub/logger"
	midsec "LinkHub/middleware/security"
	"LinkHub/module/chatsync"
	"LinkHub/module/relay"
	"LinkHub/module/session"
	"LinkHub/service/chat"
	"LinkHub/service/chat/handlers"
	"LinkHub/service/fanout"
	"LinkHub/service/kafka"
	"LinkHub/service/natsx"
	"LinkHub/service/storage"
	"LinkHub/service/storage/mgo"
	"LinkHub/service/storage/objects"
	"LinkHub/service/storage/postgres"
	storeredis "LinkHub/service/storage/redis"
	"LinkHub/tools/errs"
	"LinkHub/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// 侧车事件的重投去重窗口
const eventRedeliveryWindow = time.Minute

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a session worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runWorker(cfg)
	},
}

// closers runs cleanups in reverse order of registration.
type closers []func()

func (c *closers) add(name string, fn func() error) {
	*c = append(*c, func() {
		if err := fn(); err != nil {
			logger.Warn("[Worker] close "+name, zap.Error(err))
		}
	})
}

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func runWorker(cfg *config.AppConfig) error {
	ctx, stop := signalContext()
	defer stop()
	gin.SetMode(gin.ReleaseMode)
	ids.SetNodeID(cfg.Worker.NodeID)

	var cl closers
	defer cl.run()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	cl.add("store", store.Close)

	objs, media, err := openObjects(ctx, cfg.Objects)
	if err != nil {
		return err
	}

	var sinks []fanout.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafka.NewSink(cfg.Kafka)
		if err != nil {
			return err
		}
		cl.add("kafka sink", sink.Close)
		sinks = append(sinks, sink)
	}
	hub := fanout.NewHub(cfg.Worker.FanoutWorkers, 0, sinks...)
	cl.add("hub", func() error { hub.Close(); return nil })

	rconf := relay.ConfigFrom(cfg.Relay)
	idem, err := openIdem(ctx, cfg, rconf.DedupWindow, &cl)
	if err != nil {
		return err
	}

	nc, err := natsx.Connect(natsx.ConfigFrom(cfg.Nats))
	if err != nil {
		return err
	}
	cl.add("nats", nc.Close)
	factory := natsx.NewFactory(nc, cfg.Nats.Prefix, natsx.IdemMiddleware(idem, eventRedeliveryWindow))

	reg := session.NewRegistry()
	rel := relay.New(reg, store, objs, hub, idem, rconf)
	pipe := chatsync.New(store, hub, chatsync.ConfigFrom(cfg.Sync))
	mgr := session.NewManager(reg, factory, store, hub, pipe, rel, session.Config{})
	cl.add("sessions", func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return mgr.Close(closeCtx)
	})

	opts := chat.Options{
		SendQueue:      cfg.Worker.SendQueue,
		AllowedOrigins: cfg.Worker.AllowedOrigins,
	}
	if cfg.Worker.JWTSecret != "" {
		opts.Auth = midsec.DefaultOptions([]byte(cfg.Worker.JWTSecret))
	} else {
		logger.Warn("[Worker] jwt_secret empty, viewer tokens disabled")
	}
	if media != nil {
		opts.Media = media
	}
	srv := chat.NewServer(hub, mgr, rel, store, opts)
	handlers.Register(srv)

	logger.Info("[Worker] starting", zap.String("store", cfg.Store.Driver), zap.Int64("node", cfg.Worker.NodeID),
		zap.Bool("s3", media == nil), zap.Bool("kafka", len(sinks) > 0))
	return serve(ctx, "Worker", &http.Server{Addr: cfg.Worker.Addr, Handler: srv.Engine()})
}

func openStore(ctx context.Context, c config.StoreConfig) (storage.Store, error) {
	switch c.Driver {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, c.PostgresDSN)
		if err != nil {
			return nil, errs.ErrStorage.WrapMsg("open postgres", "err", err)
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return postgres.New(db), nil
	case config.StoreMongo:
		return mgo.Open(ctx, c.MongoURI, c.MongoDB)
	default:
		return storage.NewMemoryStore(), nil
	}
}

// openObjects picks S3 when a bucket is configured, else the in-process store
// served by the worker under /media.
func openObjects(ctx context.Context, c config.ObjectsConfig) (storage.ObjectStore, *storage.MemoryObjects, error) {
	if c.Bucket != "" {
		s3, err := objects.NewFromConfig(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	}
	base := c.PublicBaseURL
	if base == "" {
		base = "/media"
	}
	mem := storage.NewMemoryObjects(base)
	return mem, mem, nil
}

func openIdem(ctx context.Context, cfg *config.AppConfig, window time.Duration, cl *closers) (relay.IdemStore, error) {
	if cfg.Relay.RedisDedup {
		rdb, err := storeredis.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		cl.add("redis", rdb.Close)
		return relay.NewRedisIdem(rdb, window), nil
	}
	mem := relay.NewMemIdem(window)
	cl.add("idem", func() error { mem.Close(); return nil })
	return mem, nil
}
