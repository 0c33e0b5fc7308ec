package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"LinkHub/tools"
	"LinkHub/tools/errs"

	"gopkg.in/yaml.v3"
)

// Global is the configuration of the running process, set by Load.
var Global = Default()

func Default() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5},
		Gateway: GatewayConfig{
			Addr: ":8080",
			Workers: []string{
				"http://localhost:3000",
				"http://localhost:3001",
				"http://localhost:3002",
			},
		},
		Worker: WorkerConfig{
			Addr:          ":3000",
			NodeID:        1,
			SendQueue:     256,
			FanoutWorkers: 8,
		},
		Sync: SyncConfig{
			BatchSize:      5,
			HistoryChats:   20,
			MessageLimit:   20,
			AvatarTimeout:  5 * time.Second,
			HistoryTimeout: 10 * time.Second,
		},
		Relay: RelayConfig{DedupWindow: 3 * time.Second},
		Store: StoreConfig{Driver: StoreMemory, MongoDB: "linkhub"},
		Objects: ObjectsConfig{
			Region:        "us-east-1",
			PublicBaseURL: "http://localhost:3000/media",
		},
		Redis: RedisConfig{Addr: "127.0.0.1:6379", PoolSize: 20},
		Nats: NatsConfig{
			Servers: []string{"nats://127.0.0.1:4222"},
			Name:    "linkhub-worker",
			Prefix:  "provider",
			Timeout: 15 * time.Second,
		},
		Kafka: KafkaConfig{Topic: "linkhub-events", Version: "2.8.0", Compression: "snappy", Retries: 3},
	}
}

// Load builds the configuration: defaults, then the optional YAML file, then environment overrides.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, errs.WrapMsg(err, "parse config", "path", path)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	Global = cfg
	return &cfg, nil
}

func applyEnv(c *AppConfig) {
	c.Log.Level = tools.GetEnv("LINKHUB_LOG_LEVEL", c.Log.Level)
	c.Log.File = tools.GetEnv("LINKHUB_LOG_FILE", c.Log.File)

	c.Gateway.Addr = tools.GetEnv("LINKHUB_GATEWAY_ADDR", c.Gateway.Addr)
	c.Gateway.Workers = tools.GetEnvList("LINKHUB_WORKERS", c.Gateway.Workers)
	c.Gateway.RedisTable = tools.GetEnvBool("LINKHUB_GATEWAY_REDIS_TABLE", c.Gateway.RedisTable)

	c.Worker.Addr = tools.GetEnv("LINKHUB_WORKER_ADDR", c.Worker.Addr)
	c.Worker.NodeID = int64(tools.GetEnvInt("LINKHUB_NODE_ID", int(c.Worker.NodeID)))
	c.Worker.JWTSecret = tools.GetEnv("LINKHUB_JWT_SECRET", c.Worker.JWTSecret)
	c.Worker.AllowedOrigins = tools.GetEnvList("LINKHUB_ALLOWED_ORIGINS", c.Worker.AllowedOrigins)

	c.Sync.BatchSize = tools.GetEnvInt("LINKHUB_SYNC_BATCH", c.Sync.BatchSize)
	c.Sync.HistoryChats = tools.GetEnvInt("LINKHUB_SYNC_HISTORY_CHATS", c.Sync.HistoryChats)
	c.Sync.MessageLimit = tools.GetEnvInt("LINKHUB_SYNC_MESSAGE_LIMIT", c.Sync.MessageLimit)
	c.Sync.AvatarTimeout = tools.GetEnvDuration("LINKHUB_SYNC_AVATAR_TIMEOUT", c.Sync.AvatarTimeout)
	c.Sync.HistoryTimeout = tools.GetEnvDuration("LINKHUB_SYNC_HISTORY_TIMEOUT", c.Sync.HistoryTimeout)

	c.Relay.DedupWindow = tools.GetEnvDuration("LINKHUB_DEDUP_WINDOW", c.Relay.DedupWindow)
	c.Relay.RedisDedup = tools.GetEnvBool("LINKHUB_REDIS_DEDUP", c.Relay.RedisDedup)

	c.Store.Driver = tools.GetEnv("LINKHUB_STORE_DRIVER", c.Store.Driver)
	c.Store.PostgresDSN = tools.GetEnv("LINKHUB_POSTGRES_DSN", c.Store.PostgresDSN)
	c.Store.MongoURI = tools.GetEnv("LINKHUB_MONGO_URI", c.Store.MongoURI)
	c.Store.MongoDB = tools.GetEnv("LINKHUB_MONGO_DB", c.Store.MongoDB)

	c.Objects.Bucket = tools.GetEnv("LINKHUB_S3_BUCKET", c.Objects.Bucket)
	c.Objects.Region = tools.GetEnv("LINKHUB_S3_REGION", c.Objects.Region)
	c.Objects.Endpoint = tools.GetEnv("LINKHUB_S3_ENDPOINT", c.Objects.Endpoint)
	c.Objects.PublicBaseURL = tools.GetEnv("LINKHUB_MEDIA_BASE_URL", c.Objects.PublicBaseURL)

	c.Redis.Addr = tools.GetEnv("LINKHUB_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = tools.GetEnv("LINKHUB_REDIS_PASSWORD", c.Redis.Password)

	c.Nats.Servers = tools.GetEnvList("LINKHUB_NATS_SERVERS", c.Nats.Servers)
	c.Nats.Prefix = tools.GetEnv("LINKHUB_NATS_PREFIX", c.Nats.Prefix)

	c.Kafka.Brokers = tools.GetEnvList("LINKHUB_KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = tools.GetEnv("LINKHUB_KAFKA_TOPIC", c.Kafka.Topic)
}

// Validate rejects configurations the gateway or worker cannot run with.
func (c *AppConfig) Validate() error {
	if len(c.Gateway.Workers) == 0 {
		return errs.ErrArgs.WrapMsg("gateway.workers must not be empty")
	}
	for _, w := range c.Gateway.Workers {
		u, err := url.Parse(w)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errs.ErrArgs.WrapMsg("invalid worker url", "worker", w)
		}
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errs.ErrArgs.WrapMsg("store.postgres_dsn required for postgres driver")
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return errs.ErrArgs.WrapMsg("store.mongo_uri required for mongo driver")
		}
	default:
		return errs.ErrArgs.WrapMsg(fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}
	if c.Sync.BatchSize <= 0 || c.Sync.HistoryChats < 0 || c.Sync.MessageLimit <= 0 {
		return errs.ErrArgs.WrapMsg("sync batch_size and message_limit must be positive")
	}
	return nil
}
