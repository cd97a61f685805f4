package solver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/evanofslack/ipv64-dns01/internal/metrics"
	"github.com/evanofslack/ipv64-dns01/internal/provider"
)

const (
	phasePresent = "present"
	phaseCleanup = "cleanup"
)

// Solver drives the perform and cleanup callbacks of an ACME client.
// Perform failures are fatal; cleanup never stops early.
type Solver struct {
	records provider.RecordManager
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(records provider.RecordManager, log *slog.Logger, metrics *metrics.Metrics) *Solver {
	if log == nil {
		log = slog.Default()
	}
	return &Solver{
		records: records,
		log:     log,
		metrics: metrics,
	}
}

// challengeID is stable for a name/value pair, so the present and cleanup
// log lines of one challenge share it.
func challengeID(ch Challenge) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(ch.ValidationName+" "+ch.Validation)).String()
}

func (s *Solver) logger(ch Challenge) *slog.Logger {
	return s.log.With("challenge", challengeID(ch), "domain", ch.Domain, "name", ch.ValidationName)
}

// Perform publishes the validation record.
func (s *Solver) Perform(ctx context.Context, ch Challenge) error {
	log := s.logger(ch)
	log.Info("Presenting dns-01 challenge")

	if err := s.records.AddRecord(ctx, ch.ValidationName, ch.Validation); err != nil {
		s.metrics.IncChallenge(phasePresent, false)
		return fmt.Errorf("present challenge for %s: %w", ch.Domain, err)
	}
	s.metrics.IncChallenge(phasePresent, true)
	return nil
}

// CleanUp withdraws the validation record. The returned error is for
// reporting only; callers must carry on with their cleanup.
func (s *Solver) CleanUp(ctx context.Context, ch Challenge) error {
	log := s.logger(ch)
	log.Info("Cleaning up dns-01 challenge")

	if err := s.records.RemoveRecord(ctx, ch.ValidationName, ch.Validation); err != nil {
		s.metrics.IncChallenge(phaseCleanup, false)
		log.Warn("Cleanup failed, continuing", "error", err)
		return fmt.Errorf("clean up challenge for %s: %w", ch.Domain, err)
	}
	s.metrics.IncChallenge(phaseCleanup, true)
	return nil
}

// PerformAll presents challenges in order and stops at the first failure.
// Results.Performed lists what needs cleaning up either way.
func (s *Solver) PerformAll(ctx context.Context, chs []Challenge) (Results, error) {
	var results Results
	for _, ch := range chs {
		if err := s.Perform(ctx, ch); err != nil {
			results.Failures = append(results.Failures, OperationResult{Challenge: ch, Op: phasePresent, Error: err.Error()})
			return results, err
		}
		results.Performed = append(results.Performed, ch)
	}
	return results, nil
}

// CleanUpAll visits every challenge regardless of earlier failures.
func (s *Solver) CleanUpAll(ctx context.Context, chs []Challenge) Results {
	var results Results
	for _, ch := range chs {
		if err := s.CleanUp(ctx, ch); err != nil {
			results.Failures = append(results.Failures, OperationResult{Challenge: ch, Op: phaseCleanup, Error: err.Error()})
			continue
		}
		results.CleanedUp = append(results.CleanedUp, ch)
	}

	s.log.Info("Cleanup completed", "cleaned", len(results.CleanedUp), "failed", len(results.Failures))
	return results
}
