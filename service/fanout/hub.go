// Package fanout delivers session events to every viewer joined to the session's room.
package fanout

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"LinkHub/logger"
	"LinkHub/module/model"
	"LinkHub/service/metrics"

	"go.uber.org/zap"
)

// Sink receives a copy of every broadcast frame, e.g. to mirror events downstream.
type Sink interface {
	Publish(ctx context.Context, room, event string, frame []byte) error
}

const sinkTimeout = 5 * time.Second

type fanoutJob struct {
	room  string
	event string
	subs  []*Subscriber
	frame []byte
}

// sinkQueue decouples one sink from viewer delivery; a stalled sink only
// fills its own queue.
type sinkQueue struct {
	sink Sink
	jobs chan fanoutJob
}

// Hub maps rooms (session ids) to subscribers. Jobs for one room always land on
// the same shard, so a room sees its events in broadcast order.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Subscriber
	closed bool

	shards []chan fanoutJob
	sinks  []*sinkQueue
	wg     sync.WaitGroup
}

var _ model.Broadcaster = (*Hub)(nil)

func NewHub(workers, queue int, sinks ...Sink) *Hub {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	h := &Hub{
		rooms:  make(map[string]map[string]*Subscriber),
		shards: make([]chan fanoutJob, workers),
	}
	for i := range h.shards {
		ch := make(chan fanoutJob, queue)
		h.shards[i] = ch
		h.wg.Add(1)
		go h.run(ch)
	}
	for _, sink := range sinks {
		q := &sinkQueue{sink: sink, jobs: make(chan fanoutJob, queue)}
		h.sinks = append(h.sinks, q)
		h.wg.Add(1)
		go h.runSink(q)
	}
	return h
}

func (h *Hub) run(jobs <-chan fanoutJob) {
	defer h.wg.Done()
	for job := range jobs {
		for _, s := range job.subs {
			s.enqueue(job.frame)
		}
	}
}

func (h *Hub) runSink(q *sinkQueue) {
	defer h.wg.Done()
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := q.sink.Publish(ctx, job.room, job.event, job.frame); err != nil {
			logger.Warn("[Fanout] sink publish failed", zap.String("room", job.room),
				zap.String("event", job.event), zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) Join(room string, s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.rooms[room]
	if m == nil {
		m = make(map[string]*Subscriber)
		h.rooms[room] = m
	}
	m[s.ID] = s
}

func (h *Hub) Leave(room string, s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, s)
}

// LeaveAll drops the subscriber from every room it joined.
func (h *Hub) LeaveAll(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.rooms {
		h.leaveLocked(room, s)
	}
}

func (h *Hub) leaveLocked(room string, s *Subscriber) {
	if m := h.rooms[room]; m != nil {
		delete(m, s.ID)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) Count(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast encodes the event once and queues it for the room's shard and
// for every sink. It never blocks: a full queue drops the frame.
// Zero subscribers is fine; sinks still see the event.
func (h *Hub) Broadcast(room, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		logger.Warn("[Fanout] encode failed", zap.String("room", room), zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	subs := make([]*Subscriber, 0, len(h.rooms[room]))
	for _, s := range h.rooms[room] {
		subs = append(subs, s)
	}
	job := fanoutJob{room: room, event: event, subs: subs, frame: frame}
	if len(subs) > 0 {
		select {
		case h.shards[shardOf(room, len(h.shards))] <- job:
		default:
			metrics.FanoutDropped.WithLabelValues("shard").Inc()
			logger.Warn("[Fanout] shard queue full, drop frame", zap.String("room", room), zap.String("event", event))
		}
	}
	for _, q := range h.sinks {
		select {
		case q.jobs <- fanoutJob{room: room, event: event, frame: frame}:
		default:
			metrics.FanoutDropped.WithLabelValues("sink").Inc()
			logger.Debug("[Fanout] sink queue full, drop frame", zap.String("room", room), zap.String("event", event))
		}
	}
}

// Close stops the shard and sink workers after draining queued jobs.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, ch := range h.shards {
		close(ch)
	}
	for _, q := range h.sinks {
		close(q.jobs)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func shardOf(room string, n int) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(room))
	return int(f.Sum32() % uint32(n))
}
