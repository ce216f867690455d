/*
Package points contains the core domain of the SynePoints reward system.

PURPOSE:
  Employees accrue points awarded by administrators and spend them on
  prizes through a request/grant workflow. This package owns the two
  correctness-critical pieces:
  - Ledger: the ONLY code allowed to mutate a user's point balance,
    paired with an append-only audit trail of every change.
  - Workflow: the prize request lifecycle (request -> grant | cancel)
    and its interaction with the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: identity, role, current balance, team membership
  - PointRecord: immutable audit entry for a single balance change
  - Prize: catalog item with a string price (numeric or negotiated)
  - Request: a reservation of a prize, debited at creation
  - RewardCategory/Team: read-only reference data

DESIGN PRINCIPLES:
  1. Balance is authoritative, the audit trail explains it
  2. Every balance mutation is journaled as a PointRecord
  3. Check-then-write races are closed with conditional store updates
  4. Prices are parsed with decimal to separate numeric prizes from
     negotiated ("by arrangement") ones before any arithmetic

SEE ALSO:
  - ledger.go: balance mutation + journaling
  - workflow.go: request lifecycle
  - store.go: persistence contracts including the conditional primitives
*/
package points

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleUser  Role = "user"
	RolePM    Role = "pm"
	RoleAdmin Role = "admin"
)

// CanAward reports whether the role may assign points to other users.
func (r Role) CanAward() bool { return r == RoleAdmin || r == RolePM }

// CanGrant reports whether the role may grant prize requests.
func (r Role) CanGrant() bool { return r == RoleAdmin }

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RolePM, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// =============================================================================
// USER
// =============================================================================

type TeamID string

// User is an employee account. Points is the current spendable balance;
// it is mutated exclusively by the Ledger. JiraToken and TogglToken hold
// vault-encrypted ciphertext and are never interpreted here.
type User struct {
	Email      string
	FullName   string
	Role       Role
	Points     int64
	Teams      []TeamID
	JiraToken  string
	TogglToken string
	CreatedAt  time.Time
}

// InTeam reports membership in the given team.
func (u *User) InTeam(id TeamID) bool {
	for _, t := range u.Teams {
		if t == id {
			return true
		}
	}
	return false
}

type Team struct {
	ID   TeamID
	Name string
}

// =============================================================================
// POINT RECORD - Append-only audit trail entry
// =============================================================================

// PointRecord explains a single balance change. Records are append-only:
// once written they are never updated or deleted. Seq is assigned by the
// store and defines the trail ordering.
type PointRecord struct {
	Seq       int64
	ChangedBy string
	User      string
	Reason    string
	Points    int64
	RequestID string
	CreatedAt time.Time
}

// =============================================================================
// PRIZE CATALOG
// =============================================================================

// Prize is a catalog item. Price is kept as the admin entered it: either
// a non-negative integer string ("120") or a non-numeric sentinel such as
// "dle domluvy" meaning the prize is negotiated manually and can never go
// through the request workflow.
type Prize struct {
	ID          int64
	Description string
	Price       string
	Requestable bool
}

// PriceAmount parses the price. ok is false for negotiated prices,
// fractional values, or negative values; such prizes are excluded from
// the workflow before any arithmetic happens.
func (p Prize) PriceAmount() (int64, bool) {
	d, err := decimal.NewFromString(p.Price)
	if err != nil {
		return 0, false
	}
	if !d.IsInteger() || d.IsNegative() {
		return 0, false
	}
	return d.IntPart(), true
}

// Purchasable reports whether the prize can be requested at all:
// the catalog flag must be set and the price must be a plain integer.
func (p Prize) Purchasable() bool {
	_, ok := p.PriceAmount()
	return p.Requestable && ok
}

// RewardItem is one way to earn points within a category.
type RewardItem struct {
	Description string
	PointValue  int64
}

// RewardCategory is informational reference data ("how do I earn
// points?"). The core never mutates it.
type RewardCategory struct {
	Name  string
	Items []RewardItem
}

// =============================================================================
// REQUEST - Prize reservation
// =============================================================================

// Request reserves a prize. The price was already debited when the row
// was created, so Granted=false means "points held". Terminal states:
// granted (flag set, permanent) or cancelled (row deleted, refunded).
type Request struct {
	ID        string
	Email     string
	PrizeID   int64
	Granted   bool
	CreatedAt time.Time
}

// RequestView joins a request with its prize for display.
type RequestView struct {
	Request
	PrizeDescription string
	Price            int64
}

// =============================================================================
// QUERIES
// =============================================================================

// LeaderboardEntry is one row of the points leaderboard.
type LeaderboardEntry struct {
	Email  string
	Points int64
}

// Filter selects users by email substring and/or team membership.
// Zero values match everything.
type Filter struct {
	EmailContains string
	TeamID        TeamID
}
