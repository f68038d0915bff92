package migration

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Record is one ledger entry for an applied change-set. For non-run-always
// change-sets at most one record per change id ever exists.
type Record struct {
	ChangeID  string    `json:"changeId"`
	Order     int       `json:"order"`
	Author    string    `json:"author"`
	AppliedAt time.Time `json:"appliedAt"`
	RunAlways bool      `json:"runAlways"`
}

// Ledger persists which change-sets have been applied.
type Ledger interface {
	Applied(ctx context.Context, changeID string) (bool, error)
	Record(ctx context.Context, rec Record) error
}

// ChangeSet is one identified structural change to the store. Actions must
// tolerate failing mid-way and being re-run; create-if-absent operations only.
type ChangeSet struct {
	Order     int
	ID        string
	Author    string
	RunAlways bool
	Action    func(ctx context.Context) error
}

// Runner applies change-sets in ascending order, ties broken by declaration
// order. Run-always change-sets execute unconditionally; the rest execute
// exactly once, tracked through the ledger. The first failure aborts the run:
// a partially applied change-set must never be silently skipped on retry.
type Runner struct {
	ledger Ledger
}

func NewRunner(ledger Ledger) *Runner {
	return &Runner{ledger: ledger}
}

func (r *Runner) Apply(ctx context.Context, changeSets []ChangeSet) error {
	ordered := make([]ChangeSet, len(changeSets))
	copy(ordered, changeSets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	for _, cs := range ordered {
		if !cs.RunAlways {
			applied, err := r.ledger.Applied(ctx, cs.ID)
			if err != nil {
				return errors.Wrapf(err, "consulting ledger for change-set %s", cs.ID)
			}
			if applied {
				continue
			}
		}

		slog.Info("Applying change-set",
			slog.String("id", cs.ID),
			slog.Int("order", cs.Order),
			slog.Bool("runAlways", cs.RunAlways),
			slog.String("module", "migration"),
		)

		if err := cs.Action(ctx); err != nil {
			return errors.Wrapf(err, "change-set %s failed", cs.ID)
		}

		if !cs.RunAlways {
			rec := Record{
				ChangeID:  cs.ID,
				Order:     cs.Order,
				Author:    cs.Author,
				AppliedAt: time.Now().UTC(),
				RunAlways: false,
			}
			if err := r.ledger.Record(ctx, rec); err != nil {
				return errors.Wrapf(err, "recording change-set %s", cs.ID)
			}
		}
	}
	return nil
}
