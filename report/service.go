package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/gitbrag/cache"
	"github.com/justapithecus/gitbrag/log"
	"github.com/justapithecus/gitbrag/task"
)

// ErrGenerationActive is returned by the synchronous path when another
// generation already holds the subject's lease.
var ErrGenerationActive = errors.New("report generation already active for subject")

// Result pairs a report with its cache status. Report is nil when nothing
// has been committed for the key yet.
type Result struct {
	Report *Report
	Meta   *CacheMeta
}

// Service is the entry surface for callers: cache-first reads with
// fire-and-forget background regeneration behind the single-flight
// coordinator.
type Service struct {
	store       cache.Store
	coordinator *task.Coordinator
	assembler   *Assembler
	staleAge    time.Duration
	logger      *log.Logger
	clock       func() time.Time
	workerID    string

	// spawn runs a background generation; tests replace it to run inline.
	spawn func(func())
}

// NewService wires the service over a coordinator and assembler.
func NewService(store cache.Store, coordinator *task.Coordinator, assembler *Assembler, staleAge time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.NewLogger()
	}
	if staleAge <= 0 {
		staleAge = 24 * time.Hour
	}
	return &Service{
		store:       store,
		coordinator: coordinator,
		assembler:   assembler,
		staleAge:    staleAge,
		logger:      logger,
		clock:       time.Now,
		workerID:    uuid.NewString(),
		spawn:       func(fn func()) { go fn() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	s.assembler.WithClock(clock)
	return s
}

// GetOrGenerate returns the cached report for (subject, period, params)
// without blocking on generation. A fresh report returns as-is. A stale or
// absent report triggers a background regeneration, when the subject's gate
// allows one, and returns whatever is cached right now with IsStale and
// IsRegenerating set accordingly.
func (s *Service) GetOrGenerate(ctx context.Context, subject string, period Period, params Params) (*Result, error) {
	period = NormalizePeriod(string(period))
	hash := params.Hash()

	var rep Report
	bodyHit, err := s.store.Get(ctx, ReportKey(subject, period, hash), &rep)
	if err != nil {
		return nil, fmt.Errorf("report: read body: %w", err)
	}

	var meta Metadata
	metaHit, err := s.store.Get(ctx, MetaKey(subject, period, hash), &meta)
	if err != nil {
		return nil, fmt.Errorf("report: read metadata: %w", err)
	}

	result := &Result{}
	if bodyHit {
		result.Report = &rep
	}

	stale := !bodyHit
	if metaHit {
		age := s.clock().Sub(meta.CreatedAt)
		stale = !bodyHit || age >= s.staleAge
		result.Meta = &CacheMeta{
			Metadata: meta,
			Age:      age,
			IsStale:  stale,
		}
	}

	regenerating := false
	if stale {
		regenerating = s.ScheduleRegeneration(ctx, subject, period, params)
		if !regenerating {
			// Scheduling refused: either this key is already generating or
			// the subject's gate is held by another period.
			active, err := s.coordinator.IsActive(ctx, task.ID(subject, string(period), hash))
			if err != nil {
				return nil, err
			}
			regenerating = active
		}
	}
	if result.Meta != nil {
		result.Meta.IsRegenerating = regenerating
	} else if regenerating {
		result.Meta = &CacheMeta{IsStale: stale, IsRegenerating: true}
	}

	return result, nil
}

// ScheduleRegeneration starts a detached background generation for the key.
// Returns false without side effects when the key is already generating or
// the subject's gate is busy.
func (s *Service) ScheduleRegeneration(ctx context.Context, subject string, period Period, params Params) bool {
	period = NormalizePeriod(string(period))
	hash := params.Hash()
	taskID := task.ID(subject, string(period), hash)

	started, err := s.coordinator.TryStart(ctx, taskID, task.Lease{
		Subject:    subject,
		Period:     string(period),
		ParamsHash: hash,
		StartedAt:  s.clock().Unix(),
		WorkerID:   s.workerID,
	})
	if err != nil {
		s.logger.Warn("lease acquisition failed", map[string]any{"task_id": taskID, "error": err.Error()})
		return false
	}
	if !started {
		return false
	}

	// The generation outlives the request that triggered it.
	bgCtx := context.WithoutCancel(ctx)
	s.spawn(func() {
		defer s.coordinator.Complete(bgCtx, taskID, subject)

		_, err := s.assembler.Generate(bgCtx, Request{
			Subject: subject,
			Period:  period,
			Params:  params,
		})
		if err != nil {
			s.logger.Error("background generation failed", map[string]any{
				"task_id": taskID,
				"error":   err.Error(),
			})
		}
	})

	s.logger.Info("scheduled background generation", map[string]any{"task_id": taskID})
	return true
}

// Generate runs a generation synchronously under the subject's lease and
// returns the committed report. Used by callers that need the result now,
// like the CLI.
func (s *Service) Generate(ctx context.Context, req Request) (*Report, error) {
	req.Period = NormalizePeriod(string(req.Period))
	hash := req.Params.Hash()
	taskID := task.ID(req.Subject, string(req.Period), hash)

	started, err := s.coordinator.TryStart(ctx, taskID, task.Lease{
		Subject:    req.Subject,
		Period:     string(req.Period),
		ParamsHash: hash,
		StartedAt:  s.clock().Unix(),
		WorkerID:   s.workerID,
	})
	if err != nil {
		return nil, err
	}
	if !started {
		return nil, fmt.Errorf("%w: %s", ErrGenerationActive, req.Subject)
	}
	defer s.coordinator.Complete(ctx, taskID, req.Subject)

	return s.assembler.Generate(ctx, req)
}
