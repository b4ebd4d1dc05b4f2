// Package scheduler implements the cooldown sweep for the digest engine.
//
// The sweep is the decoupling point between aggregation and sending: merges
// never send synchronously, so a burst of 50 alerts in one second produces
// at most one email once cooldown allows, not 50. It runs on a periodic
// timer (EventBridge in production), scans eligible digests in restartable
// pages, and fans sends out in parallel.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"puretrack/internal/digest"
	"puretrack/internal/types"
)

// DefaultBatchSize is the page size of the eligibility scan when the config
// does not override it.
const DefaultBatchSize = 100

// DefaultSendConcurrency bounds the parallel send fan-out per page.
const DefaultSendConcurrency = 8

// SweepStore is the scan seam the sweeper needs. Satisfied by
// *db.DigestRepository.
type SweepStore interface {
	// ListEligible returns one id-ordered page of send-eligible digests
	// strictly after afterID. Advisory only; the authoritative decision
	// is the sender's claim.
	ListEligible(ctx context.Context, now time.Time, afterID string, limit int) ([]*types.AlertDigest, error)
}

// DigestSender abstracts the send coordinator. Satisfied by
// *digest.Sender.
type DigestSender interface {
	AttemptSend(ctx context.Context, digestID string) (types.SendOutcome, error)
}

// SweepResult summarizes one sweep invocation.
type SweepResult struct {
	Scanned int // digests returned by the eligibility scan
	Sent    int // transport successes
	Failed  int // claimed attempts whose transport call failed
	Skipped int // claims lost to a concurrent sweep or state change
}

// Sweeper drives one cooldown sweep over all eligible digests.
type Sweeper struct {
	store       SweepStore
	sender      DigestSender
	clock       types.Clock
	logger      types.Logger
	batchSize   int
	concurrency int
}

// SweeperConfig holds the dependencies and tuning for a Sweeper.
type SweeperConfig struct {
	Store       SweepStore
	Sender      DigestSender
	Clock       types.Clock
	Logger      types.Logger
	BatchSize   int
	Concurrency int
}

// NewSweeper creates a Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NewSlogLogger(nil)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultSendConcurrency
	}
	return &Sweeper{
		store:       cfg.Store,
		sender:      cfg.Sender,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}
}

// Run executes one full sweep: page through eligible digests in id order
// and attempt a send for each.
//
// Eligibility is pinned to the sweep's start time, so a digest whose
// cooldown elapses mid-sweep waits for the next invocation. This keeps a sweep
// from chasing a moving frontier.
//
// Per-digest failures never abort the sweep; a digest whose send fails is
// protected by its own attempt counter, and the others are independent.
// Only a store error on the scan itself stops the sweep, returning the
// partial result so the caller can log progress; the scan is restartable,
// so the next timer tick resumes naturally (digests already claimed this
// sweep are no longer eligible).
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	var result SweepResult
	afterID := ""

	for {
		page, err := s.store.ListEligible(ctx, now, afterID, s.batchSize)
		if err != nil {
			return result, fmt.Errorf("scanning eligible digests after %q: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}

		result.Scanned += len(page)

		// Fan out sends for this page. Each send claims its own attempt
		// atomically, so parallelism here cannot double-send.
		outcomes := make([]types.SendOutcome, len(page))
		errs := make([]error, len(page))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for i, d := range page {
			g.Go(func() error {
				outcomes[i], errs[i] = s.sender.AttemptSend(gctx, d.ID)
				return nil
			})
		}
		_ = g.Wait() // goroutines record errors per slot, never return them

		for i, d := range page {
			switch {
			case errs[i] == nil && outcomes[i].Sent:
				result.Sent++
			case errs[i] == nil:
				result.Failed++
			case errors.Is(errs[i], digest.ErrClaimLost):
				result.Skipped++
			default:
				result.Failed++
				s.logger.Error("send attempt errored",
					"digest_id", d.ID,
					"error", errs[i].Error(),
				)
			}
		}

		afterID = page[len(page)-1].ID
		if len(page) < s.batchSize {
			break
		}
	}

	s.logger.Info("cooldown sweep complete",
		"scanned", result.Scanned,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)

	return result, nil
}
