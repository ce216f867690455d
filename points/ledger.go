/*
ledger.go - Balance mutation and the append-only audit trail

PURPOSE:
  The Ledger mutates point balances for awards and corrections, and it
  journals every change as a PointRecord. The request workflow applies
  the same debit-plus-journal pairing inside its own transactions.

WRITE ORDERING:
  Balance update first, record append second. If the append fails after
  the balance landed, the balance stays authoritative: the error is
  logged with enough context for reconciliation and returned to the
  caller, but the balance change is NOT rolled back here. Callers that
  need both-or-nothing (the request workflow) run the pair inside
  TxStore.WithTx instead.

AUTHORIZATION:
  AwardPoints enforces the admin/pm role. ApplyDelta is the low-level
  primitive for the workflow and deliberately skips the role check;
  it must never be exposed past the domain layer.

SEE ALSO:
  - workflow.go: composes debits with request rows inside WithTx
  - store.go: CreditPoints / AppendPointRecord contracts
*/
package points

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Ledger owns point balance mutation outside the request workflow;
// the workflow applies the same debit+journal pairing inside WithTx.
type Ledger struct {
	store Store
	log   *logrus.Logger
}

func NewLedger(store Store, log *logrus.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// AwardPoints assigns delta points (positive or negative) to subject on
// behalf of actor. The actor must be an admin or pm; the subject must
// exist. Every award is journaled.
func (l *Ledger) AwardPoints(ctx context.Context, actorEmail, subjectEmail string, delta int64, reason string) error {
	actor, err := l.store.GetUser(ctx, actorEmail)
	if err != nil {
		return fmt.Errorf("load actor %s: %w", actorEmail, err)
	}
	if !actor.Role.CanAward() {
		return fmt.Errorf("award by %s: %w", actorEmail, ErrUnauthorized)
	}
	if _, err := l.store.GetUser(ctx, subjectEmail); err != nil {
		return fmt.Errorf("load subject %s: %w", subjectEmail, err)
	}
	return l.ApplyDelta(ctx, actorEmail, subjectEmail, delta, reason, "")
}

// ApplyDelta atomically increments subject's balance and appends the
// matching PointRecord. No authorization check: callers inside the
// domain are responsible for that. requestID ties the record to a prize
// request when the change originates from the workflow.
func (l *Ledger) ApplyDelta(ctx context.Context, actorEmail, subjectEmail string, delta int64, reason, requestID string) error {
	if err := l.store.CreditPoints(ctx, subjectEmail, delta); err != nil {
		return fmt.Errorf("apply delta for %s: %w", subjectEmail, err)
	}

	rec := PointRecord{
		ChangedBy: actorEmail,
		User:      subjectEmail,
		Reason:    reason,
		Points:    delta,
		RequestID: requestID,
	}
	if err := l.store.AppendPointRecord(ctx, rec); err != nil {
		// Balance already landed and is authoritative; the trail now has
		// a gap that reconciliation must find. Log everything needed to
		// reconstruct the missing record.
		l.log.WithFields(logrus.Fields{
			"user":       subjectEmail,
			"changed_by": actorEmail,
			"points":     delta,
			"reason":     reason,
			"request_id": requestID,
		}).WithError(err).Error("audit append failed after balance update")
		return fmt.Errorf("append point record for %s: %w", subjectEmail, err)
	}
	return nil
}

// GetBalance is a fresh point-in-time read of the current balance.
func (l *Ledger) GetBalance(ctx context.Context, email string) (int64, error) {
	u, err := l.store.GetUser(ctx, email)
	if err != nil {
		return 0, err
	}
	return u.Points, nil
}

// History returns the subject's audit trail in append order.
func (l *Ledger) History(ctx context.Context, email string) ([]PointRecord, error) {
	return l.store.PointRecordsFor(ctx, email)
}

// Leaderboard returns all users ordered by points descending. Ties keep
// user creation order (ListUsers is insertion-ordered and the sort is
// stable).
func (l *Ledger) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	users, err := l.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = LeaderboardEntry{Email: u.Email, Points: u.Points}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})
	return entries, nil
}
