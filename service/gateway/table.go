// Package gateway is the front door: it pins every session id to one worker
// of a static pool and reverse proxies plain and websocket traffic there.
package gateway

import (
	"context"
	"sync"

	"LinkHub/logger"
	"LinkHub/service/metrics"
	"LinkHub/tools/errs"

	"go.uber.org/zap"
)

// Table maps session ids to workers. An assignment is made on first sight
// and never changes while the table lives.
type Table interface {
	Resolve(ctx context.Context, sessionID string) (worker string, isNew bool, err error)
}

// MemoryTable keeps assignments in process. New ids are spread round robin
// by the number of assignments made so far.
type MemoryTable struct {
	workers []string

	mu       sync.Mutex
	assigned map[string]string
}

func NewMemoryTable(workers []string) (*MemoryTable, error) {
	if len(workers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("gateway needs at least one worker")
	}
	return &MemoryTable{
		workers:  append([]string(nil), workers...),
		assigned: make(map[string]string),
	}, nil
}

func (t *MemoryTable) Resolve(_ context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return t.workers[0], false, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.assigned[sessionID]; ok {
		return w, false, nil
	}
	w := t.workers[len(t.assigned)%len(t.workers)]
	t.assigned[sessionID] = w
	assigned(sessionID, w)
	return w, true, nil
}

// Len is the number of sessions assigned so far.
func (t *MemoryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.assigned)
}

func assigned(sessionID, worker string) {
	metrics.GatewayAssignments.WithLabelValues(worker).Inc()
	logger.Info("[Gateway] new session assigned", zap.String("session", sessionID), zap.String("worker", worker))
}
