// Package task implements single-flight coordination for report generation.
//
// A generation holds a TTL-bounded lease keyed by its task id, plus a slot in
// a subject-scoped active set that gates the whole subject: only one
// generation may run per reported subject at a time, regardless of period or
// params, so sequential generations reuse intermediate-cache warmth instead
// of racing each other against the upstream API.
//
// Leases are advisory, not mutexes. The TTL is a safety net against a crashed
// worker holding a lease forever; it says nothing about success or failure.
package task

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/justapithecus/gitbrag/cache"
	"github.com/justapithecus/gitbrag/log"
)

// DefaultLeaseTTL bounds how long a generation is considered active.
const DefaultLeaseTTL = 300 * time.Second

// Lease is the metadata stored at the lease key. Subject is the entity being
// reported on, not the caller that requested the report.
type Lease struct {
	Subject    string `msgpack:"subject"`
	Period     string `msgpack:"period"`
	ParamsHash string `msgpack:"params_hash"`
	StartedAt  int64  `msgpack:"started_at"`
	WorkerID   string `msgpack:"worker_id"`
}

// ID derives the deterministic task id for a (subject, period, params) triple.
// The subject is lowercased so case variants coordinate on one lease.
func ID(subject, period, paramsHash string) string {
	return fmt.Sprintf("%s:%s:%s", strings.ToLower(subject), period, paramsHash)
}

// LeaseKey is the cache key holding a task's lease.
func LeaseKey(taskID string) string {
	return "task:report:" + taskID
}

// SubjectActiveKey is the cache key holding a subject's active task set.
func SubjectActiveKey(subject string) string {
	return "task:subject:" + strings.ToLower(subject) + ":active"
}

// Coordinator registers and releases generation leases on top of the cache
// store's atomic TryAcquire. It holds no in-process locks; correctness is
// delegated entirely to backend atomicity and the keying scheme.
type Coordinator struct {
	store    cache.Store
	leaseTTL time.Duration
	logger   *log.Logger
}

// NewCoordinator creates a coordinator. A non-positive leaseTTL takes
// DefaultLeaseTTL.
func NewCoordinator(store cache.Store, leaseTTL time.Duration, logger *log.Logger) *Coordinator {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Coordinator{store: store, leaseTTL: leaseTTL, logger: logger}
}

// IsActive reports whether a live lease exists for the task.
func (c *Coordinator) IsActive(ctx context.Context, taskID string) (bool, error) {
	var lease Lease
	ok, err := c.store.Get(ctx, LeaseKey(taskID), &lease)
	if err != nil {
		return false, fmt.Errorf("task: read lease %s: %w", taskID, err)
	}
	return ok, nil
}

// ActiveTasks returns the task ids currently active for a subject.
// At most one entry under the per-subject gate; the set shape keeps the gate
// answerable without scanning every lease key.
func (c *Coordinator) ActiveTasks(ctx context.Context, subject string) ([]string, error) {
	var active []string
	ok, err := c.store.Get(ctx, SubjectActiveKey(subject), &active)
	if err != nil {
		return nil, fmt.Errorf("task: read active set for %s: %w", subject, err)
	}
	if !ok {
		return nil, nil
	}
	return active, nil
}

// CanStartForSubject reports whether no generation is active for the subject.
// The gate is global per subject: a different period or params combination
// still waits for the active one to finish.
func (c *Coordinator) CanStartForSubject(ctx context.Context, subject string) (bool, error) {
	active, err := c.ActiveTasks(ctx, subject)
	if err != nil {
		return false, err
	}
	if len(active) > 0 {
		c.logger.Info("subject gate closed", map[string]any{
			"subject": strings.ToLower(subject),
			"active":  active,
		})
	}
	return len(active) == 0, nil
}

// TryStart attempts to register a generation. Returns true iff the caller won
// both the task lease and the subject gate. Exactly one of two racing callers
// wins; the store's TryAcquire resolves the race, never a check-then-set.
func (c *Coordinator) TryStart(ctx context.Context, taskID string, lease Lease) (bool, error) {
	ok, err := c.CanStartForSubject(ctx, lease.Subject)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if lease.StartedAt == 0 {
		lease.StartedAt = time.Now().Unix()
	}

	acquired, err := c.store.TryAcquire(ctx, LeaseKey(taskID), lease, c.leaseTTL)
	if err != nil {
		return false, fmt.Errorf("task: acquire lease %s: %w", taskID, err)
	}
	if !acquired {
		return false, nil
	}

	// Claim the subject gate atomically as well. Losing here means another
	// task id for the same subject slipped in between the gate check and
	// now; roll the lease back so the winner runs alone.
	registered, err := c.store.TryAcquire(ctx, SubjectActiveKey(lease.Subject), []string{taskID}, c.leaseTTL)
	if err != nil {
		c.releaseLease(ctx, taskID)
		return false, fmt.Errorf("task: register active task for %s: %w", lease.Subject, err)
	}
	if !registered {
		c.releaseLease(ctx, taskID)
		return false, nil
	}

	c.logger.Info("task started", map[string]any{
		"task_id": taskID,
		"subject": strings.ToLower(lease.Subject),
		"period":  lease.Period,
	})
	return true, nil
}

// Complete releases the lease and the subject gate. Safe to call on any
// outcome path; cleanup is best-effort, the lease TTL is the backstop for
// anything a crash leaves behind.
func (c *Coordinator) Complete(ctx context.Context, taskID, subject string) {
	c.releaseLease(ctx, taskID)

	active, err := c.ActiveTasks(ctx, subject)
	if err != nil {
		c.logger.Warn("could not read active set during cleanup", map[string]any{
			"subject": strings.ToLower(subject),
			"error":   err.Error(),
		})
		return
	}

	remaining := slices.DeleteFunc(active, func(id string) bool { return id == taskID })
	key := SubjectActiveKey(subject)
	if len(remaining) == 0 {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("could not clear active set", map[string]any{
				"subject": strings.ToLower(subject),
				"error":   err.Error(),
			})
		}
	} else if err := c.store.Set(ctx, key, remaining, c.leaseTTL); err != nil {
		c.logger.Warn("could not rewrite active set", map[string]any{
			"subject": strings.ToLower(subject),
			"error":   err.Error(),
		})
	}

	c.logger.Info("task completed", map[string]any{
		"task_id": taskID,
		"subject": strings.ToLower(subject),
	})
}

func (c *Coordinator) releaseLease(ctx context.Context, taskID string) {
	if err := c.store.Delete(ctx, LeaseKey(taskID)); err != nil {
		c.logger.Warn("could not delete lease", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
	}
}
