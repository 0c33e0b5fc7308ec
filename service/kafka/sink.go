package kafka

import (
	"context"
	"sync/atomic"

	"LinkHub/global/config"
	"LinkHub/logger"
	"LinkHub/service/fanout"
	"LinkHub/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

const headerEvent = "event"

// Sink mirrors every fan-out frame to a topic, keyed by session id.
// Delivery is asynchronous; broker errors are logged by the drain goroutine.
type Sink struct {
	producer sarama.AsyncProducer
	topic    string
	failed   atomic.Int64
	done     chan struct{}
}

var _ fanout.Sink = (*Sink)(nil)

func NewSink(c config.KafkaConfig) (*Sink, error) {
	cfg, err := BuildConfig(c)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewAsyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "create kafka producer", "brokers", c.Brokers)
	}
	return NewSinkWithProducer(p, c.Topic), nil
}

func NewSinkWithProducer(p sarama.AsyncProducer, topic string) *Sink {
	s := &Sink{producer: p, topic: topic, done: make(chan struct{})}
	go s.drain()
	return s
}

// drain runs until the producer closes both result channels.
func (s *Sink) drain() {
	defer close(s.done)
	succ, fails := s.producer.Successes(), s.producer.Errors()
	for succ != nil || fails != nil {
		select {
		case _, ok := <-succ:
			if !ok {
				succ = nil
			}
		case perr, ok := <-fails:
			if !ok {
				fails = nil
				continue
			}
			s.failed.Add(1)
			logger.Warn("[Kafka] event mirror send failed", zap.String("topic", s.topic), zap.Error(perr.Err))
		}
	}
}

// Publish hands the frame to the producer, waiting at most until ctx is done.
func (s *Sink) Publish(ctx context.Context, room, event string, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic:   s.topic,
		Key:     sarama.StringEncoder(room),
		Value:   sarama.ByteEncoder(frame),
		Headers: []sarama.RecordHeader{{Key: []byte(headerEvent), Value: []byte(event)}},
	}
	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return errs.WrapMsg(ctx.Err(), "kafka enqueue", "topic", s.topic, "event", event)
	}
}

// Close flushes buffered messages and waits for the drain goroutine.
func (s *Sink) Close() error {
	err := s.producer.Close()
	<-s.done
	return err
}
