package csvingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/session"
)

const (
	// rateLimitWaitSeconds is the visible countdown before resubmitting a
	// rate-limited group.
	rateLimitWaitSeconds = 90

	// maxRateLimitRetries bounds how often a single group is resubmitted
	// after 429s, so a misbehaving backend cannot hold the scheduler
	// forever. The save is context-cancellable either way.
	maxRateLimitRetries = 30
)

// SaveClient persists one batch of statement rows.
type SaveClient interface {
	SaveCSVBatch(ctx context.Context, sess extract.HeaderSource, txs []extract.Transaction) error
}

// Progress reports how many month groups have been persisted so far.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Scheduler persists edited statement rows in month-sized batches,
// strictly sequentially, backing off on backend rate limits. Partial
// saves are possible and are not rolled back.
type Scheduler struct {
	client SaveClient
	log    zerolog.Logger

	// OnProgress, when set, is called after the total is known and after
	// each completed group.
	OnProgress func(Progress)

	// OnWait, when set, is called once per second during a rate-limit
	// countdown with the seconds remaining.
	OnWait func(secondsLeft int)

	// tick waits one second. Tests replace it.
	tick func(ctx context.Context) error
}

// NewScheduler creates a batch save scheduler.
func NewScheduler(client SaveClient, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		client: client,
		log:    log,
		tick: func(ctx context.Context) error {
			select {
			case <-time.After(time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// GroupByMonth partitions transactions by the first 7 characters of the
// date field (YYYY-MM, exact string prefix). Groups keep the order their
// keys were first encountered, and rows keep their order within a group.
func GroupByMonth(txs []extract.Transaction) (map[string][]extract.Transaction, []string) {
	groups := make(map[string][]extract.Transaction)
	var order []string

	for _, t := range txs {
		month := t.Date
		if len(month) > 7 {
			month = month[:7]
		}
		if _, seen := groups[month]; !seen {
			order = append(order, month)
		}
		groups[month] = append(groups[month], t)
	}
	return groups, order
}

// SaveAll coerces the rows, groups them by month and submits one group at
// a time. A 429 from the backend triggers a fixed countdown and a retry
// of the same group; any other error aborts the remaining groups.
func (s *Scheduler) SaveAll(ctx context.Context, sess *session.Session, rows []Row) error {
	txs := CoerceRows(rows)
	groups, order := GroupByMonth(txs)

	s.reportProgress(Progress{Current: 0, Total: len(order)})

	for i, month := range order {
		group := groups[month]

		err := retry.Do(
			func() error {
				return s.client.SaveCSVBatch(ctx, sess, group)
			},
			retry.RetryIf(func(err error) bool {
				return errors.Is(err, extract.ErrRateLimited)
			}),
			retry.OnRetry(func(n uint, err error) {
				s.log.Warn().
					Str("month", month).
					Uint("retry", n+1).
					Msg("Rate limited, waiting before resubmitting group")
				s.countdown(ctx)
			}),
			retry.Attempts(maxRateLimitRetries),
			retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
				// The countdown in OnRetry is the whole delay.
				return 0
			}),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			// Groups before this one are already persisted; no rollback.
			return fmt.Errorf("csvingest: saving group %s (%d of %d saved): %w", month, i, len(order), err)
		}

		s.reportProgress(Progress{Current: i + 1, Total: len(order)})
		s.log.Info().
			Str("month", month).
			Int("rows", len(group)).
			Str("total", groupTotal(group).String()).
			Msg("Saved month group")
	}

	return nil
}

// countdown reports each remaining second from the full wait down to
// zero, sleeping between reports. The total wait is exactly the full
// wait; zero is reported without a trailing sleep.
func (s *Scheduler) countdown(ctx context.Context) {
	for i := rateLimitWaitSeconds; i > 0; i-- {
		if s.OnWait != nil {
			s.OnWait(i)
		}
		if err := s.tick(ctx); err != nil {
			return
		}
	}
	if s.OnWait != nil {
		s.OnWait(0)
	}
}

func (s *Scheduler) reportProgress(p Progress) {
	if s.OnProgress != nil {
		s.OnProgress(p)
	}
}

// groupTotal sums a group's prices without float accumulation error.
func groupTotal(txs []extract.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(decimal.NewFromFloat(t.Price))
	}
	return sum
}
