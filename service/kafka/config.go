package kafka

import (
	"strings"
	"time"

	"LinkHub/global/config"
	"LinkHub/tools/errs"

	"github.com/Shopify/sarama"
)

// BuildConfig turns the kafka section into a sarama config for the event mirror.
func BuildConfig(c config.KafkaConfig) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "linkhub"
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, errs.ErrArgs.WrapMsg("invalid kafka version", "version", c.Version)
		}
		cfg.Version = v
	}

	// Producer
	cfg.Producer.Return.Successes = false // 镜像只关心失败
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = max(c.Retries, 1)
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // key = session id，同一会话落同一分区
	switch strings.ToLower(c.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer（linkhub events 使用）
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}
