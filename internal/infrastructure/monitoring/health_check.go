package monitoring

import (
	"context"
	"sync"
	"time"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency of the agent.
type CheckFunc func(ctx context.Context) (bool, error)

// HealthChecker runs named dependency checks. A check with an Interval
// reuses its last result until the interval has passed.
type HealthChecker struct {
	mu     sync.Mutex
	checks []*healthCheck
	now    func() time.Time
}

type healthCheck struct {
	name     string
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration

	checkedAt time.Time
	result    string
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{now: time.Now}
}

// AddCheck registers a check. interval 0 runs it on every CheckAll; timeout 0
// leaves the caller's context as is.
func (h *HealthChecker) AddCheck(name string, check CheckFunc, interval, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, &healthCheck{
		name:     name,
		check:    check,
		interval: interval,
		timeout:  timeout,
	})
}

// CheckAll runs every due check concurrently and reports the combined status.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.Lock()
	checks := append([]*healthCheck(nil), h.checks...)
	h.mu.Unlock()

	now := h.now()
	results := make([]string, len(checks))

	var wg sync.WaitGroup
	for i, hc := range checks {
		if cached, ok := h.cached(hc, now); ok {
			results[i] = cached
			continue
		}
		wg.Add(1)
		go func(i int, hc *healthCheck) {
			defer wg.Done()
			results[i] = describe(runCheck(ctx, hc))
			h.store(hc, now, results[i])
		}(i, hc)
	}
	wg.Wait()

	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: now,
		Checks:    make(map[string]string, len(checks)),
	}
	for i, hc := range checks {
		status.Checks[hc.name] = results[i]
		if results[i] != statusHealthy {
			status.Status = statusUnhealthy
		}
	}
	return status
}

func (h *HealthChecker) cached(hc *healthCheck, now time.Time) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hc.interval <= 0 || hc.checkedAt.IsZero() || now.Sub(hc.checkedAt) >= hc.interval {
		return "", false
	}
	return hc.result, true
}

func (h *HealthChecker) store(hc *healthCheck, at time.Time, result string) {
	h.mu.Lock()
	hc.checkedAt = at
	hc.result = result
	h.mu.Unlock()
}

func runCheck(ctx context.Context, hc *healthCheck) (bool, error) {
	if hc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hc.timeout)
		defer cancel()
	}
	return hc.check(ctx)
}

func describe(healthy bool, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case !healthy:
		return "check failed"
	default:
		return statusHealthy
	}
}
