package health

import (
	"context"
	"time"
)

// Checkable is implemented by the store and broker adapters.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker runs an adapter's HealthCheck under a timeout.
type AdapterChecker struct {
	name     string
	adapter  Checkable
	timeout  time.Duration
	optional bool
}

// NewAdapterChecker wraps adapter; a zero timeout means five seconds.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AdapterChecker{name: name, adapter: adapter, timeout: timeout}
}

// Optional makes a failure report degraded instead of unhealthy.
func (c *AdapterChecker) Optional() *AdapterChecker {
	c.optional = true
	return c
}

func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		if c.optional {
			result.Status = StatusDegraded
		}
		result.Message = ""
		result.Error = err.Error()
	}
	return result
}

func (c *AdapterChecker) Name() string {
	return c.name
}

// NewDatabaseChecker checks the document store.
func NewDatabaseChecker(name string, db Checkable) *AdapterChecker {
	return NewAdapterChecker(name, db, 5*time.Second)
}

// NewCacheChecker checks Redis.
func NewCacheChecker(name string, cache Checkable) *AdapterChecker {
	return NewAdapterChecker(name, cache, 3*time.Second)
}

// NewMessageBrokerChecker checks the notification broker. Notifications are
// best effort, so a broken broker only degrades the service.
func NewMessageBrokerChecker(name string, broker Checkable) *AdapterChecker {
	return NewAdapterChecker(name, broker, 5*time.Second).Optional()
}
