/*
workflow.go - Prize request lifecycle

PURPOSE:
  Composes the balance check, the debit, and the request row into units
  that cannot race. State machine per request:

      Pending (granted=false)
         |--> Granted  (flag set, permanent, no balance change)
         |--> Cancelled (row deleted, price refunded)

  No transition leaves a terminal state.

HOW THE RACES ARE CLOSED:
  RequestPrize   conditional debit ("points >= price") inside WithTx
                 with the journal entry and the request insert. Two
                 concurrent requests can never jointly overspend: the
                 store applies the debits one at a time and the second
                 one fails the precondition.
  Grant/Cancel   conditional transition on the request row itself
                 ("only while granted=false"). Exactly one of two
                 concurrent resolvers wins; the loser gets
                 ErrAlreadyResolved and causes no balance effect.

LISTING:
  The joined request views tolerate a missing prize: the row is logged
  as a data-integrity problem and skipped so the rest of the listing
  still renders.

SEE ALSO:
  - ledger.go: journaling of the debit/refund/fulfillment records
  - store.go: the conditional primitives this file leans on
*/
package points

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Workflow drives the prize request lifecycle. Every balance effect is
// journaled in the same transaction that applies it.
type Workflow struct {
	store TxStore
	log   *logrus.Logger
}

func NewWorkflow(store TxStore, log *logrus.Logger) *Workflow {
	return &Workflow{store: store, log: log}
}

// RequestPrize reserves a prize for the user: it debits the price
// (conditionally, so the balance can never go negative) and inserts the
// pending request, journaled, all in one atomic unit. A price exactly
// equal to the balance is allowed.
func (w *Workflow) RequestPrize(ctx context.Context, email string, prizeID int64) (*Request, error) {
	prize, err := w.store.GetPrize(ctx, prizeID)
	if err != nil {
		return nil, err
	}
	price, ok := prize.PriceAmount()
	if !ok || !prize.Requestable {
		return nil, fmt.Errorf("prize %d: %w", prizeID, ErrNotRequestable)
	}

	req := Request{
		ID:        uuid.NewString(),
		Email:     email,
		PrizeID:   prizeID,
		Granted:   false,
		CreatedAt: time.Now().UTC(),
	}

	err = w.store.WithTx(ctx, func(s Store) error {
		if err := s.DebitPointsConditional(ctx, email, price); err != nil {
			return err
		}
		rec := PointRecord{
			ChangedBy: email,
			User:      email,
			Reason:    "prize request: " + prize.Description,
			Points:    -price,
			RequestID: req.ID,
		}
		if err := s.AppendPointRecord(ctx, rec); err != nil {
			return err
		}
		return s.InsertRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CancelRequest deletes a pending request and refunds its price to the
// requester. Only the requester or an admin may cancel. Granted requests
// are terminal; a cancel racing a grant loses with ErrAlreadyResolved.
func (w *Workflow) CancelRequest(ctx context.Context, actorEmail, requestID string) error {
	req, err := w.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Granted {
		return fmt.Errorf("cancel request %s: %w", requestID, ErrAlreadyResolved)
	}
	if actorEmail != req.Email {
		actor, err := w.store.GetUser(ctx, actorEmail)
		if err != nil {
			return fmt.Errorf("load actor %s: %w", actorEmail, err)
		}
		if actor.Role != RoleAdmin {
			return fmt.Errorf("cancel by %s: %w", actorEmail, ErrUnauthorized)
		}
	}

	prize, err := w.store.GetPrize(ctx, req.PrizeID)
	if err != nil {
		// The debit happened against this prize; losing it breaks the
		// refund and is a referential inconsistency, not a user error.
		return fmt.Errorf("request %s references prize %d: %w", requestID, req.PrizeID, ErrDataIntegrity)
	}
	price, ok := prize.PriceAmount()
	if !ok {
		return fmt.Errorf("request %s prize %d has non-numeric price: %w", requestID, req.PrizeID, ErrDataIntegrity)
	}

	return w.store.WithTx(ctx, func(s Store) error {
		// The conditional delete is the race arbiter: if a concurrent
		// grant already flipped the flag, nothing below runs.
		if err := s.DeletePendingRequest(ctx, requestID); err != nil {
			return err
		}
		if err := s.CreditPoints(ctx, req.Email, price); err != nil {
			return err
		}
		return s.AppendPointRecord(ctx, PointRecord{
			ChangedBy: actorEmail,
			User:      req.Email,
			Reason:    "request cancelled",
			Points:    price,
			RequestID: requestID,
		})
	})
}

// GrantRequest marks a pending request as fulfilled. Admin only. The
// points were already debited at request time, so the journaled
// fulfillment record carries a zero delta.
func (w *Workflow) GrantRequest(ctx context.Context, adminEmail, requestID string) error {
	admin, err := w.store.GetUser(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("load granter %s: %w", adminEmail, err)
	}
	if !admin.Role.CanGrant() {
		return fmt.Errorf("grant by %s: %w", adminEmail, ErrUnauthorized)
	}

	req, err := w.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Granted {
		return fmt.Errorf("grant request %s: %w", requestID, ErrAlreadyResolved)
	}

	reason := "prize granted"
	if prize, err := w.store.GetPrize(ctx, req.PrizeID); err == nil {
		reason = "prize granted: " + prize.Description
	}

	return w.store.WithTx(ctx, func(s Store) error {
		if err := s.MarkRequestGranted(ctx, requestID); err != nil {
			return err
		}
		return s.AppendPointRecord(ctx, PointRecord{
			ChangedBy: adminEmail,
			User:      req.Email,
			Reason:    reason,
			Points:    0,
			RequestID: requestID,
		})
	})
}

// ListPendingRequests returns all ungranted requests joined with prize
// data, for the admin grant screen.
func (w *Workflow) ListPendingRequests(ctx context.Context) ([]RequestView, error) {
	reqs, err := w.store.ListPendingRequests(ctx)
	if err != nil {
		return nil, err
	}
	return w.joinPrizes(ctx, reqs), nil
}

// ListRequestsFor returns one user's requests (pending and granted)
// joined with prize data.
func (w *Workflow) ListRequestsFor(ctx context.Context, email string) ([]RequestView, error) {
	reqs, err := w.store.ListRequestsFor(ctx, email)
	if err != nil {
		return nil, err
	}
	return w.joinPrizes(ctx, reqs), nil
}

func (w *Workflow) joinPrizes(ctx context.Context, reqs []Request) []RequestView {
	views := make([]RequestView, 0, len(reqs))
	for _, r := range reqs {
		prize, err := w.store.GetPrize(ctx, r.PrizeID)
		if err != nil {
			w.log.WithFields(logrus.Fields{
				"request": r.ID,
				"prize":   r.PrizeID,
			}).WithError(err).Warn("skipping request with missing prize")
			continue
		}
		price, ok := prize.PriceAmount()
		if !ok {
			w.log.WithFields(logrus.Fields{
				"request": r.ID,
				"prize":   r.PrizeID,
				"price":   prize.Price,
			}).Warn("skipping request with non-numeric prize price")
			continue
		}
		views = append(views, RequestView{
			Request:          r,
			PrizeDescription: prize.Description,
			Price:            price,
		})
	}
	return views
}
