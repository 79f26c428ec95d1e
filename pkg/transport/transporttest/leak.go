package transporttest

import (
	"runtime"
	"testing"
	"time"
)

// LeakDetector fails a test when goroutines started during it are still
// running at the end.
type LeakDetector struct {
	t             testing.TB
	initialCount  int
	allowedGrowth int
	settle        time.Duration
}

// NewLeakDetector records the current goroutine count.
func NewLeakDetector(t testing.TB) *LeakDetector {
	d := &LeakDetector{t: t, settle: 2 * time.Second}
	d.initialCount = runtime.NumGoroutine()
	return d
}

// AllowGrowth tolerates n extra goroutines.
func (d *LeakDetector) AllowGrowth(n int) *LeakDetector {
	d.allowedGrowth = n
	return d
}

// Settle bounds how long Check waits for goroutines to exit.
func (d *LeakDetector) Settle(wait time.Duration) *LeakDetector {
	d.settle = wait
	return d
}

// Check polls the goroutine count until it drops back to the starting count
// or the settle time runs out.
func (d *LeakDetector) Check() {
	d.t.Helper()

	deadline := time.Now().Add(d.settle)
	count := runtime.NumGoroutine()
	for count-d.initialCount > d.allowedGrowth && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		count = runtime.NumGoroutine()
	}

	if leaked := count - d.initialCount; leaked > d.allowedGrowth {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		d.t.Errorf("goroutine leak: started with %d, ended with %d (allowed growth %d)\n%s",
			d.initialCount, count, d.allowedGrowth, buf[:n])
	}
}
