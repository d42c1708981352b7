package ports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDuplicateChecker is returned by Register for a name already in use.
var ErrDuplicateChecker = errors.New("duplicate health checker")

// HealthChecker is a component that can report whether it works.
// The snapshot store and the remote quote source both implement it.
type HealthChecker interface {
	// Name identifies the component in readiness responses.
	Name() string

	// Check returns nil when the component is usable. It must honor ctx.
	Check(ctx context.Context) error
}

// HealthRegistry runs the registered checks on demand.
type HealthRegistry interface {
	// Register adds a critical checker: its failure makes the service unhealthy.
	Register(checker HealthChecker) error

	// RegisterOptional adds a checker whose failure only degrades the service.
	RegisterOptional(checker HealthChecker) error

	// CheckAll runs every check concurrently under ctx.
	CheckAll(ctx context.Context) *HealthResult
}

// HealthStatus is the state of one check or of the whole service.
type HealthStatus string

const (
	HealthStatusHealthy HealthStatus = "healthy"

	// HealthStatusDegraded means only optional checks failed. The quote
	// collection still works without its remote source.
	HealthStatusDegraded HealthStatus = "degraded"

	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResult is the outcome of CheckAll.
type HealthResult struct {
	Status    HealthStatus            `json:"status"`
	Checks    map[string]*CheckResult `json:"checks"`
	Timestamp time.Time               `json:"timestamp"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   HealthStatus  `json:"status"`
	Critical bool          `json:"critical"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

type registration struct {
	checker  HealthChecker
	critical bool
}

// DefaultHealthRegistry is the HealthRegistry used by the service.
// It is safe for concurrent use.
type DefaultHealthRegistry struct {
	mu      sync.RWMutex
	entries []registration

	// now is overridden in tests.
	now func() time.Time
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *DefaultHealthRegistry {
	return &DefaultHealthRegistry{now: time.Now}
}

// Register adds a critical checker.
func (r *DefaultHealthRegistry) Register(checker HealthChecker) error {
	return r.add(checker, true)
}

// RegisterOptional adds a checker that can only degrade the service.
func (r *DefaultHealthRegistry) RegisterOptional(checker HealthChecker) error {
	return r.add(checker, false)
}

func (r *DefaultHealthRegistry) add(checker HealthChecker, critical bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := checker.Name()
	for _, e := range r.entries {
		if e.checker.Name() == name {
			return fmt.Errorf("%w: %s", ErrDuplicateChecker, name)
		}
	}

	r.entries = append(r.entries, registration{checker: checker, critical: critical})

	return nil
}

// Names returns the registered checker names in registration order.
func (r *DefaultHealthRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.checker.Name()
	}

	return names
}

// CheckAll runs every check concurrently. The service is unhealthy when a
// critical check fails, degraded when only optional ones do.
func (r *DefaultHealthRegistry) CheckAll(ctx context.Context) *HealthResult {
	r.mu.RLock()
	entries := append([]registration(nil), r.entries...)
	r.mu.RUnlock()

	result := &HealthResult{
		Status:    HealthStatusHealthy,
		Checks:    make(map[string]*CheckResult, len(entries)),
		Timestamp: r.now(),
	}

	checks := make([]*CheckResult, len(entries))

	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Go(func() {
			checks[i] = r.run(ctx, e)
		})
	}

	wg.Wait()

	for i, e := range entries {
		res := checks[i]
		result.Checks[e.checker.Name()] = res
		result.Status = worse(result.Status, res)
	}

	return result
}

func (r *DefaultHealthRegistry) run(ctx context.Context, e registration) *CheckResult {
	start := r.now()
	err := e.checker.Check(ctx)

	res := &CheckResult{
		Status:   HealthStatusHealthy,
		Critical: e.critical,
		Duration: r.now().Sub(start),
	}

	if err != nil {
		res.Status = HealthStatusUnhealthy
		res.Message = err.Error()
	}

	return res
}

// worse folds one check result into the overall status.
func worse(overall HealthStatus, res *CheckResult) HealthStatus {
	if res.Status == HealthStatusHealthy || overall == HealthStatusUnhealthy {
		return overall
	}

	if res.Critical {
		return HealthStatusUnhealthy
	}

	return HealthStatusDegraded
}
