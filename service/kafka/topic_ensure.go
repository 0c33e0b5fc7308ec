package kafka

import (
	"errors"
	"fmt"

	"LinkHub/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopic 会：
// 1) 不存在就创建；
// 2) 已存在且分区数 < 期望值时扩分区（Kafka 只能增加分区）。
func EnsureTopic(admin sarama.ClusterAdmin, topic string, partitions int32, replication int16) error {
	descs, err := admin.DescribeTopics([]string{topic})
	if err != nil {
		return fmt.Errorf("describe topic %s: %w", topic, err)
	}
	exists := len(descs) == 1 && errors.Is(descs[0].Err, sarama.ErrNoError)

	minISR := "1"
	if replication >= 3 {
		minISR = "2"
	}

	if !exists {
		td := &sarama.TopicDetail{
			NumPartitions:     partitions,
			ReplicationFactor: replication,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr(minISR),
				"unclean.leader.election.enable": strPtr("false"),
				"compression.type":               strPtr("producer"),
			},
		}
		if err := admin.CreateTopic(topic, td, false); err != nil {
			var te *sarama.TopicError
			if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
				logger.Info("[Topic] exists (race)", zap.String("topic", topic))
				return nil
			}
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		logger.Info("[Topic] created", zap.String("topic", topic), zap.Int32("partitions", partitions))
		return nil
	}

	cur := int32(len(descs[0].Partitions))
	if partitions > cur {
		if err := admin.CreatePartitions(topic, partitions, nil, false); err != nil {
			return fmt.Errorf("expand partitions %s from %d to %d: %w", topic, cur, partitions, err)
		}
		logger.Info("[Topic] partitions expanded", zap.String("topic", topic), zap.Int32("from", cur), zap.Int32("to", partitions))
	}
	return nil
}

func strPtr(s string) *string { return &s }
