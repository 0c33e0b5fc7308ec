package chatsync

import (
	"math"

	"LinkHub/module/model"
)

// progress reports done/total of the current phase. The percent is overall:
// phase 1 covers 0..50 and phase 2 (base 50) covers 50..100. An empty phase
// is complete.
func progress(done, total, base int) model.SyncProgress {
	pct := base + 50
	if total > 0 {
		pct = base + int(math.Round(float64(done)/float64(total)*50))
	}
	return model.SyncProgress{Current: done, Total: total, Percent: pct}
}
