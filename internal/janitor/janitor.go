// Package janitor runs the scheduled expiry sweep: it periodically
// garbage-collects delivery artifacts past their expires_at and clears
// expired rows from the PIN store, rate limiter, and translation cache.
// Artifact directories and PINs survive until expires_at, then go.
package janitor

import (
	"time"

	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/pinstore"
	"github.com/talkdub/talkdub/internal/ratelimit"
	"github.com/talkdub/talkdub/internal/translationcache"
	"github.com/talkdub/talkdub/pkg/logger"
)

// Sweeper owns the collaborators a periodic expiry pass touches.
type Sweeper struct {
	Store    *jobstore.Store
	PINStore *pinstore.Store
	Limiter  *ratelimit.Limiter
	Cache    *translationcache.Cache

	DataRoot           string
	FailedJobRetention time.Duration

	stop chan struct{}
}

// New constructs a Sweeper.
func New(store *jobstore.Store, pinStore *pinstore.Store, limiter *ratelimit.Limiter, cache *translationcache.Cache, dataRoot string, failedJobRetention time.Duration) *Sweeper {
	return &Sweeper{
		Store:              store,
		PINStore:           pinStore,
		Limiter:            limiter,
		Cache:              cache,
		DataRoot:           dataRoot,
		FailedJobRetention: failedJobRetention,
		stop:               make(chan struct{}),
	}
}

// Start runs one sweep immediately, then repeats on the given interval
// until Stop is called.
func (s *Sweeper) Start(interval time.Duration) {
	go func() {
		s.runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the background sweep loop.
func (s *Sweeper) Stop() {
	close(s.stop)
}

func (s *Sweeper) runOnce() {
	now := time.Now().UTC()

	ids, err := s.Store.ListExpired(now)
	if err != nil {
		logger.Error("janitor: failed to list expired jobs", "error", err)
	} else {
		for _, id := range ids {
			s.expireOne(id)
		}
	}

	if n, err := s.PINStore.CleanupExpired(); err != nil {
		logger.Error("janitor: pin sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("janitor: pin sweep removed rows", "count", n)
	}

	if n, err := s.Limiter.CleanupExpired(); err != nil {
		logger.Error("janitor: rate limiter sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("janitor: rate limiter sweep removed rows", "count", n)
	}

	if n, err := s.Cache.CleanupExpired(); err != nil {
		logger.Error("janitor: translation cache sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("janitor: translation cache sweep removed rows", "count", n)
	}
}

// expireOne garbage-collects one job's artifacts and marks it EXPIRED.
// A FAILED job is only swept once it has also outlived FailedJobRetention,
// so operators keep a forensic window on failures independent of the
// delivery retention window.
func (s *Sweeper) expireOne(id string) {
	job, err := s.Store.Load(id)
	if err != nil {
		logger.Warn("janitor: failed to load expired job", "job_id", id, "error", err)
		return
	}

	if job.Status == models.StatusFailed {
		if job.ExpiresAt == nil || time.Since(*job.ExpiresAt) < s.FailedJobRetention {
			return
		}
	}

	if err := s.Store.Delete(s.DataRoot, id, job.Status == models.StatusFailed); err != nil {
		logger.Error("janitor: failed to delete job artifacts", "job_id", id, "error", err)
		return
	}

	job.Status = models.StatusExpired
	job.Outputs = nil
	if err := s.Store.Save(job); err != nil {
		logger.Error("janitor: failed to persist expired status", "job_id", id, "error", err)
		return
	}

	logger.Info("janitor: expired job artifacts removed", "job_id", id)
}
