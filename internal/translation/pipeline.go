package translation

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/ratelimit"
	"github.com/talkdub/talkdub/internal/translationcache"
	"github.com/talkdub/talkdub/pkg/logger"
)

// errKind classifies a translation failure for the retry policy.
type errKind int

const (
	errKindGeneric errKind = iota
	errKindRateLimit
	errKindConnection
	errKindClient4xx
)

// ErrTooManyChunksFailed is returned when more than half of a job's chunks
// exhausted retries, per the global-abort rule.
var ErrTooManyChunksFailed = errors.New("translation: failed-chunk ratio exceeds threshold")

// Pipeline wires chunking, cache, rate limiter, LLM client, and quality
// validation together.
type Pipeline struct {
	Cache       *translationcache.Cache
	RateLimiter *ratelimit.Limiter
	Client      Client

	CharLimit     int
	SegLimit      int
	MaxRetries    int
	AcquireTimeout time.Duration
}

// NewPipeline constructs a Pipeline from its collaborators.
func NewPipeline(cache *translationcache.Cache, limiter *ratelimit.Limiter, client Client, charLimit, segLimit, maxRetries int) *Pipeline {
	return &Pipeline{
		Cache:          cache,
		RateLimiter:    limiter,
		Client:         client,
		CharLimit:      charLimit,
		SegLimit:       segLimit,
		MaxRetries:     maxRetries,
		AcquireTimeout: 2 * time.Minute,
	}
}

// Run translates every non-hallucination-flagged segment in place, chunk by
// chunk, applying cache, rate limiting, retries, and quality validation. It
// mutates and returns the segment slice; callers persist it via the phase
// metadata merge.
func (p *Pipeline) Run(ctx context.Context, jobID, srcLang, tgtLang string, segments []models.Segment) ([]models.Segment, error) {
	chunks := BuildChunks(segments, p.CharLimit, p.SegLimit)
	if len(chunks) == 0 {
		return segments, nil
	}

	bySegID := make(map[string]*models.Segment, len(segments))
	for i := range segments {
		bySegID[segments[i].SegID] = &segments[i]
	}

	var failedChunks int

	for _, chunk := range chunks {
		translations, err := p.translateChunk(ctx, jobID, srcLang, tgtLang, chunk)
		if err != nil {
			failedChunks++
			logger.Warn("translation chunk failed, using source text fallback", "job_id", jobID, "error", err)
			for _, seg := range chunk.Segments {
				target := bySegID[seg.SegID]
				fallback := target.SrcText
				target.TgtText = &fallback
				target.Translation.Status = models.TranslationFailed
				target.Translation.Retries = p.MaxRetries
			}
			continue
		}

		for i, seg := range chunk.Segments {
			target := bySegID[seg.SegID]
			translated := translations[i]
			target.TgtText = &translated
			target.Translation.Status = models.TranslationCompleted
		}
	}

	if float64(failedChunks)/float64(len(chunks)) > 0.5 {
		return segments, ErrTooManyChunksFailed
	}

	return segments, nil
}

// translateChunk translates one chunk: cache probe, rate-limiter acquire,
// LLM request, shape parse, quality validation, cache store, under the
// per-kind retry policy.
func (p *Pipeline) translateChunk(ctx context.Context, jobID, srcLang, tgtLang string, chunk Chunk) ([]string, error) {
	texts := chunk.Texts()

	if cached, ok := p.Cache.Get(srcLang, tgtLang, texts); ok {
		return cached, nil
	}

	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		acquired, err := p.RateLimiter.Acquire(ctx, p.AcquireTimeout)
		if err != nil {
			return nil, err
		}
		if !acquired {
			lastErr = errors.New("rate limiter acquire timed out")
			continue
		}

		translations, err := p.Client.Translate(ctx, srcLang, tgtLang, texts)
		if err != nil {
			kind := classifyError(err)
			if kind == errKindClient4xx {
				return nil, err
			}
			lastErr = err

			if attempt < maxRetries-1 {
				if !p.sleepForRetry(ctx, kind, attempt) {
					return nil, ctx.Err()
				}
			}
			continue
		}

		findings, pass := ValidateChunk(srcLang, tgtLang, texts, translations)
		if !pass {
			lastErr = errors.New("translation chunk failed quality validation")
			logger.Warn("translation quality validation failed", "job_id", jobID, "findings", len(findings))
			if attempt < maxRetries-1 {
				if !p.sleepForRetry(ctx, errKindGeneric, attempt) {
					return nil, ctx.Err()
				}
			}
			continue
		}

		p.Cache.Set(srcLang, tgtLang, texts, translations)
		return translations, nil
	}

	return nil, lastErr
}

// TranslateShort is the short-form re-translation path: one segment, one
// request, an output-length cap. The cache is bypassed (its keys are
// batch-shaped and the cap changes the output); rate limiting and a single
// retry still apply.
func (p *Pipeline) TranslateShort(ctx context.Context, srcLang, tgtLang, text string, maxChars int) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		acquired, err := p.RateLimiter.Acquire(ctx, p.AcquireTimeout)
		if err != nil {
			return "", err
		}
		if !acquired {
			lastErr = errors.New("rate limiter acquire timed out")
			continue
		}

		out, err := p.Client.TranslateShort(ctx, srcLang, tgtLang, text, maxChars)
		if err != nil {
			kind := classifyError(err)
			if kind == errKindClient4xx {
				return "", err
			}
			lastErr = err
			if attempt == 0 && !p.sleepForRetry(ctx, kind, attempt) {
				return "", ctx.Err()
			}
			continue
		}
		if strings.TrimSpace(out) == "" {
			lastErr = errors.New("short translation came back empty")
			continue
		}
		return out, nil
	}
	return "", lastErr
}

// sleepForRetry waits according to the retry policy's per-kind rule and
// reports whether the wait completed (false means the context was canceled).
func (p *Pipeline) sleepForRetry(ctx context.Context, kind errKind, attempt int) bool {
	var wait time.Duration
	switch kind {
	case errKindRateLimit:
		wait = 60 * time.Second
	case errKindConnection:
		wait = time.Duration(5*(1<<uint(attempt))) * time.Second
	default:
		wait = time.Duration(5*(1<<uint(attempt))) * time.Second
	}

	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}

func classifyError(err error) errKind {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return errKindRateLimit
	case strings.Contains(msg, "400") || strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") || strings.Contains(msg, "404"):
		return errKindClient4xx
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errKindConnection
	}

	return errKindGeneric
}
