package kafka

import (
	"context"
	"errors"

	"LinkHub/global/config"
	"LinkHub/logger"
	"LinkHub/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Record is one mirrored event as read back from the topic.
type Record struct {
	SessionID string
	Event     string
	Frame     []byte
	Partition int32
	Offset    int64
}

type RecordHandler func(Record) error

func recordOf(msg *sarama.ConsumerMessage) Record {
	r := Record{
		SessionID: string(msg.Key),
		Frame:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == headerEvent {
			r.Event = string(h.Value)
		}
	}
	return r
}

type groupHandler struct {
	session string // 为空表示不过滤
	handle  RecordHandler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Info("[Kafka] consumer group setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("[Kafka] consumer group cleanup")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		rec := recordOf(msg)
		if h.session == "" || rec.SessionID == h.session {
			if err := h.handle(rec); err != nil {
				logger.Warn("[Kafka] handler error", zap.String("session", rec.SessionID),
					zap.Int64("offset", rec.Offset), zap.Error(err))
			}
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// ConsumeEvents reads the event topic until ctx is done. sessionID filters by key when non-empty.
func ConsumeEvents(ctx context.Context, c config.KafkaConfig, groupID, sessionID string, handle RecordHandler) error {
	cfg, err := BuildConfig(c)
	if err != nil {
		return err
	}
	group, err := sarama.NewConsumerGroup(c.Brokers, groupID, cfg)
	if err != nil {
		return errs.WrapMsg(err, "create consumer group", "group", groupID)
	}
	defer group.Close()

	go func() {
		for err := range group.Errors() {
			logger.Warn("[Kafka] consumer group error", zap.Error(err))
		}
	}()

	h := &groupHandler{session: sessionID, handle: handle}
	for {
		if err := group.Consume(ctx, []string{c.Topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Warn("[Kafka] consume error", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
