package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/staffcut/internal/domain"
	"github.com/dunamismax/staffcut/internal/pipeline"
	"github.com/dunamismax/staffcut/internal/ratelimit"
)

// RateLimiter charges a submitter for the pages a batch will process.
type RateLimiter interface {
	Take(ctx context.Context, subject string, pages int) (ratelimit.Decision, error)
}

var errNoLocalPages = errors.New("no images found")

// countPages lists a local batch the way the worker will. Object store
// prefixes are listed by the worker only, so they are charged one page here.
func countPages(ctx context.Context, batch domain.Batch) (int, error) {
	if batch.SourceType != domain.SourceTypeLocalDir {
		return 1, nil
	}
	if err := verifyLocalDirs(batch.Input, batch.Output); err != nil {
		return 0, err
	}
	items, err := pipeline.LocalDirSource{}.List(ctx, pipeline.Request{Input: batch.Input, Options: batch.Options})
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%w with extension %q in directory %s", errNoLocalPages, batch.Options.Extension, batch.Input)
	}
	return len(items), nil
}

// admit charges pages to the caller's bucket for this source type. It writes
// the 429 itself and reports false when the batch has to wait. A limiter
// error lets the batch through.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, batch domain.Batch, pages int) bool {
	if s.rateLimiter == nil {
		return true
	}

	user := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader))
	if user == "" {
		user = "anonymous"
	}
	subject := user + ":" + batch.SourceType

	decision, err := s.rateLimiter.Take(r.Context(), subject, pages)
	if err != nil {
		s.logger.Warn("rate limiter check failed", zap.String("subject", subject), zap.Int("pages", pages), zap.Error(err))
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	if decision.Allowed {
		return true
	}

	retryAfter := max(int(decision.RetryAfter.Round(time.Second).Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.logger.Info("batch rate limited",
		zap.String("subject", subject),
		zap.Int("pages", pages),
		zap.Duration("retry_after", decision.RetryAfter),
	)
	s.metrics.observeSubmission(batch.SourceType, submissionRateLimited)
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error": "page budget exhausted",
		"pages": pages,
	})
	return false
}

// verifyLocalDirs rejects a local batch up front when the worker would fail on
// it anyway. It assumes the API and worker share a filesystem.
func verifyLocalDirs(input, output string) error {
	for _, dir := range []struct{ role, path string }{{"input", input}, {"output", output}} {
		info, err := os.Stat(dir.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s directory is missing: %s", dir.role, dir.path)
			}
			return fmt.Errorf("%s directory check failed: %w", dir.role, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory: %s", dir.role, dir.path)
		}
	}
	return nil
}
