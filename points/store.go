/*
store.go - Persistence contracts for the points domain

PURPOSE:
  Defines the interface between domain logic and the database. Two
  implementations exist: store/sqlite (production) and points/store
  (in-memory, for tests and dev).

CONDITIONAL PRIMITIVES:
  The concurrency model relies on the store, not on in-process locks.
  The three racy check-then-write sequences in the domain are each
  closed by a single conditional mutation:

    DebitPointsConditional  "subtract price only if points >= price"
    MarkRequestGranted      "set granted only if still pending"
    DeletePendingRequest    "delete only if still pending"

  Losing one of these races surfaces as InsufficientPointsError or
  ErrAlreadyResolved; the caller never retries blindly.

APPEND-ONLY CONTRACT:
  point_records is append-only. AppendPointRecord is the only write;
  no update or delete operation exists anywhere in the interface.

ATOMIC UNITS:
  WithTx groups a conditional mutation with its journal entry and any
  paired row insert/delete, so a reader never observes a PointRecord
  without the matching balance change or vice versa.

SEE ALSO:
  - store/sqlite/sqlite.go: SQL implementation (WAL, BEGIN IMMEDIATE)
  - points/store/memory.go: in-memory implementation with snapshot
    rollback for WithTx
*/
package points

import "context"

// Store is the persistence surface used by the ledger, workflow,
// directory and vault. Implementations must make each method atomic on
// its own; multi-method atomicity comes from TxStore.WithTx.
type Store interface {
	// --- users ---

	// GetUser returns the user or ErrUserNotFound.
	GetUser(ctx context.Context, email string) (*User, error)

	// PutUser inserts or updates identity fields (name, role, teams).
	// It never touches Points or token ciphertexts: the balance belongs
	// to the ledger and the tokens to the vault.
	PutUser(ctx context.Context, u *User) error

	// ListUsers returns all users in insertion order.
	ListUsers(ctx context.Context) ([]User, error)

	// FindUsers returns users matching the filter, insertion-ordered.
	// No match is an empty slice, never an error.
	FindUsers(ctx context.Context, f Filter) ([]User, error)

	// CreditPoints atomically increments the balance by delta (which may
	// be negative). Returns ErrUserNotFound for unknown users.
	CreditPoints(ctx context.Context, email string, delta int64) error

	// DebitPointsConditional atomically subtracts amount, but only when
	// points >= amount. Returns InsufficientPointsError when the balance
	// cannot cover it, ErrUserNotFound for unknown users.
	DebitPointsConditional(ctx context.Context, email string, amount int64) error

	// SetUserToken stores vault ciphertext for "jira" or "toggl" without
	// touching any other user field.
	SetUserToken(ctx context.Context, email, kind, ciphertext string) error

	// --- audit trail ---

	// AppendPointRecord appends to the audit trail. Seq and CreatedAt
	// are assigned by the store.
	AppendPointRecord(ctx context.Context, rec PointRecord) error

	// PointRecordsFor returns the subject's trail in append order.
	PointRecordsFor(ctx context.Context, email string) ([]PointRecord, error)

	// --- prize catalog ---

	GetPrize(ctx context.Context, id int64) (*Prize, error)
	ListPrizes(ctx context.Context) ([]Prize, error)
	PutPrize(ctx context.Context, p Prize) error

	// --- reward catalog (read-only reference data) ---

	ListRewardCategories(ctx context.Context) ([]RewardCategory, error)
	PutRewardCategory(ctx context.Context, c RewardCategory) error

	// --- teams ---

	ListTeams(ctx context.Context) ([]Team, error)
	PutTeam(ctx context.Context, t Team) error

	// --- requests ---

	InsertRequest(ctx context.Context, r Request) error

	// GetRequest returns the request or ErrRequestNotFound.
	GetRequest(ctx context.Context, id string) (*Request, error)

	// MarkRequestGranted flips granted=false -> true. Returns
	// ErrAlreadyResolved if the request was already granted,
	// ErrRequestNotFound if the row is gone (cancelled).
	MarkRequestGranted(ctx context.Context, id string) error

	// DeletePendingRequest removes the row only while granted=false.
	// Returns ErrAlreadyResolved if it was granted meanwhile,
	// ErrRequestNotFound if the row is gone.
	DeletePendingRequest(ctx context.Context, id string) error

	// ListPendingRequests returns all ungranted requests, oldest first.
	ListPendingRequests(ctx context.Context) ([]Request, error)

	// ListRequestsFor returns all requests of one user, oldest first.
	ListRequestsFor(ctx context.Context, email string) ([]Request, error)
}

// TxStore adds multi-operation atomicity. If fn returns an error the
// whole unit rolls back.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view of the store.
	WithTx(ctx context.Context, fn func(Store) error) error
}
