package config

import "time"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type AppConfig struct {
	Log     LogConfig     `yaml:"log"`
	Gateway GatewayConfig `yaml:"gateway"`
	Worker  WorkerConfig  `yaml:"worker"`
	Sync    SyncConfig    `yaml:"sync"`
	Relay   RelayConfig   `yaml:"relay"`
	Store   StoreConfig   `yaml:"store"`
	Objects ObjectsConfig `yaml:"objects"`
	Redis   RedisConfig   `yaml:"redis"`
	Nats    NatsConfig    `yaml:"nats"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // 为空只输出到 stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type GatewayConfig struct {
	Addr       string   `yaml:"addr"`        // 网关监听地址
	Workers    []string `yaml:"workers"`     // 静态 worker 列表，顺序即分配顺序
	RedisTable bool     `yaml:"redis_table"` // 多个网关副本共享分配表
}

type WorkerConfig struct {
	Addr           string   `yaml:"addr"`
	NodeID         int64    `yaml:"node_id"` // snowflake 节点号
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SendQueue      int      `yaml:"send_queue"`     // 每个订阅者的发送队列长度
	FanoutWorkers  int      `yaml:"fanout_workers"` // 广播分片数
}

type SyncConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	HistoryChats   int           `yaml:"history_chats"` // 二阶段同步的 top-K
	MessageLimit   int           `yaml:"message_limit"`
	AvatarTimeout  time.Duration `yaml:"avatar_timeout"`
	HistoryTimeout time.Duration `yaml:"history_timeout"`
}

type RelayConfig struct {
	DedupWindow time.Duration `yaml:"dedup_window"`
	RedisDedup  bool          `yaml:"redis_dedup"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	PostgresDSN string `yaml:"postgres_dsn"`
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`
}

type ObjectsConfig struct {
	Bucket        string `yaml:"bucket"` // 为空时使用进程内对象存储
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	PublicBaseURL string `yaml:"public_base_url"`
	UsePathStyle  bool   `yaml:"use_path_style"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type NatsConfig struct {
	Servers []string      `yaml:"servers"`
	Name    string        `yaml:"name"`
	Prefix  string        `yaml:"prefix"` // provider 侧车 subject 前缀
	Timeout time.Duration `yaml:"timeout"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"` // 为空则不镜像事件
	Topic       string   `yaml:"topic"`
	Version     string   `yaml:"version"`
	Compression string   `yaml:"compression"`
	Retries     int      `yaml:"retries"`
}
