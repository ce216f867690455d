// Package store provides an in-memory points.TxStore for tests and dev.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/synetech/synepoints/points"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps plus insertion-order slices so that
// listing semantics match the SQL store (rowid order). All methods are
// safe for concurrent use; WithTx serializes against every other write
// and rolls back via snapshot on error.
type Memory struct {
	mu sync.RWMutex

	users     map[string]*points.User
	userOrder []string

	records []points.PointRecord
	nextSeq int64

	prizes     map[int64]points.Prize
	prizeOrder []int64

	categories []points.RewardCategory

	teams     map[points.TeamID]points.Team
	teamOrder []points.TeamID

	requests  map[string]points.Request
	reqOrder  []string
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*points.User),
		prizes:   make(map[int64]points.Prize),
		teams:    make(map[points.TeamID]points.Team),
		requests: make(map[string]points.Request),
		nextSeq:  1,
	}
}

var _ points.TxStore = (*Memory)(nil)

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, email string) (*points.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(email)
}

func (m *Memory) getUserLocked(email string) (*points.User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, points.ErrUserNotFound
	}
	cp := *u
	cp.Teams = append([]points.TeamID(nil), u.Teams...)
	return &cp, nil
}

func (m *Memory) PutUser(_ context.Context, u *points.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putUserLocked(u)
}

func (m *Memory) putUserLocked(u *points.User) error {
	existing, ok := m.users[u.Email]
	if !ok {
		cp := *u
		cp.Teams = append([]points.TeamID(nil), u.Teams...)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		m.users[u.Email] = &cp
		m.userOrder = append(m.userOrder, u.Email)
		return nil
	}
	// Identity fields only; balance and tokens are owned elsewhere.
	existing.FullName = u.FullName
	existing.Role = u.Role
	existing.Teams = append([]points.TeamID(nil), u.Teams...)
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]points.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsersLocked()
}

func (m *Memory) listUsersLocked() ([]points.User, error) {
	out := make([]points.User, 0, len(m.userOrder))
	for _, email := range m.userOrder {
		u := m.users[email]
		cp := *u
		cp.Teams = append([]points.TeamID(nil), u.Teams...)
		out = append(out, cp)
	}
	return out, nil
}

func (m *Memory) FindUsers(_ context.Context, f points.Filter) ([]points.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findUsersLocked(f)
}

func (m *Memory) findUsersLocked(f points.Filter) ([]points.User, error) {
	out := []points.User{}
	for _, email := range m.userOrder {
		u := m.users[email]
		if f.EmailContains != "" && !strings.Contains(u.Email, f.EmailContains) {
			continue
		}
		if f.TeamID != "" && !u.InTeam(f.TeamID) {
			continue
		}
		cp := *u
		cp.Teams = append([]points.TeamID(nil), u.Teams...)
		out = append(out, cp)
	}
	return out, nil
}

func (m *Memory) CreditPoints(_ context.Context, email string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditPointsLocked(email, delta)
}

func (m *Memory) creditPointsLocked(email string, delta int64) error {
	u, ok := m.users[email]
	if !ok {
		return points.ErrUserNotFound
	}
	u.Points += delta
	return nil
}

func (m *Memory) DebitPointsConditional(_ context.Context, email string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debitConditionalLocked(email, amount)
}

func (m *Memory) debitConditionalLocked(email string, amount int64) error {
	u, ok := m.users[email]
	if !ok {
		return points.ErrUserNotFound
	}
	if u.Points < amount {
		return &points.InsufficientPointsError{Email: email, Balance: u.Points, Price: amount}
	}
	u.Points -= amount
	return nil
}

func (m *Memory) SetUserToken(_ context.Context, email, kind, ciphertext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setUserTokenLocked(email, kind, ciphertext)
}

func (m *Memory) setUserTokenLocked(email, kind, ciphertext string) error {
	u, ok := m.users[email]
	if !ok {
		return points.ErrUserNotFound
	}
	switch kind {
	case "jira":
		u.JiraToken = ciphertext
	case "toggl":
		u.TogglToken = ciphertext
	default:
		return &points.StoreError{Op: "set token", Err: errUnknownKind(kind)}
	}
	return nil
}

type errUnknownKind string

func (e errUnknownKind) Error() string { return "unknown token kind: " + string(e) }

// =============================================================================
// AUDIT TRAIL (append-only)
// =============================================================================

func (m *Memory) AppendPointRecord(_ context.Context, rec points.PointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendRecordLocked(rec)
}

func (m *Memory) appendRecordLocked(rec points.PointRecord) error {
	rec.Seq = m.nextSeq
	m.nextSeq++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) PointRecordsFor(_ context.Context, email string) ([]points.PointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordsForLocked(email)
}

func (m *Memory) recordsForLocked(email string) ([]points.PointRecord, error) {
	out := []points.PointRecord{}
	for _, r := range m.records {
		if r.User == email {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// PRIZES & REWARD CATALOG
// =============================================================================

func (m *Memory) GetPrize(_ context.Context, id int64) (*points.Prize, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPrizeLocked(id)
}

func (m *Memory) getPrizeLocked(id int64) (*points.Prize, error) {
	p, ok := m.prizes[id]
	if !ok {
		return nil, points.ErrPrizeNotFound
	}
	return &p, nil
}

func (m *Memory) ListPrizes(_ context.Context) ([]points.Prize, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPrizesLocked()
}

func (m *Memory) listPrizesLocked() ([]points.Prize, error) {
	out := make([]points.Prize, 0, len(m.prizeOrder))
	for _, id := range m.prizeOrder {
		out = append(out, m.prizes[id])
	}
	return out, nil
}

func (m *Memory) PutPrize(_ context.Context, p points.Prize) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putPrizeLocked(p)
}

func (m *Memory) putPrizeLocked(p points.Prize) error {
	if _, ok := m.prizes[p.ID]; !ok {
		m.prizeOrder = append(m.prizeOrder, p.ID)
	}
	m.prizes[p.ID] = p
	return nil
}

func (m *Memory) ListRewardCategories(_ context.Context) ([]points.RewardCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCategoriesLocked()
}

func (m *Memory) listCategoriesLocked() ([]points.RewardCategory, error) {
	out := make([]points.RewardCategory, len(m.categories))
	for i, c := range m.categories {
		cp := c
		cp.Items = append([]points.RewardItem(nil), c.Items...)
		out[i] = cp
	}
	return out, nil
}

func (m *Memory) PutRewardCategory(_ context.Context, c points.RewardCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCategoryLocked(c)
}

func (m *Memory) putCategoryLocked(c points.RewardCategory) error {
	cp := c
	cp.Items = append([]points.RewardItem(nil), c.Items...)
	for i, existing := range m.categories {
		if existing.Name == c.Name {
			m.categories[i] = cp
			return nil
		}
	}
	m.categories = append(m.categories, cp)
	return nil
}

// =============================================================================
// TEAMS
// =============================================================================

func (m *Memory) ListTeams(_ context.Context) ([]points.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTeamsLocked()
}

func (m *Memory) listTeamsLocked() ([]points.Team, error) {
	out := make([]points.Team, 0, len(m.teamOrder))
	for _, id := range m.teamOrder {
		out = append(out, m.teams[id])
	}
	return out, nil
}

func (m *Memory) PutTeam(_ context.Context, t points.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putTeamLocked(t)
}

func (m *Memory) putTeamLocked(t points.Team) error {
	if _, ok := m.teams[t.ID]; !ok {
		m.teamOrder = append(m.teamOrder, t.ID)
	}
	m.teams[t.ID] = t
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) InsertRequest(_ context.Context, r points.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRequestLocked(r)
}

func (m *Memory) insertRequestLocked(r points.Request) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if _, ok := m.requests[r.ID]; !ok {
		m.reqOrder = append(m.reqOrder, r.ID)
	}
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (*points.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) getRequestLocked(id string) (*points.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, points.ErrRequestNotFound
	}
	return &r, nil
}

func (m *Memory) MarkRequestGranted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markGrantedLocked(id)
}

func (m *Memory) markGrantedLocked(id string) error {
	r, ok := m.requests[id]
	if !ok {
		return points.ErrRequestNotFound
	}
	if r.Granted {
		return points.ErrAlreadyResolved
	}
	r.Granted = true
	m.requests[id] = r
	return nil
}

func (m *Memory) DeletePendingRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletePendingLocked(id)
}

func (m *Memory) deletePendingLocked(id string) error {
	r, ok := m.requests[id]
	if !ok {
		return points.ErrRequestNotFound
	}
	if r.Granted {
		return points.ErrAlreadyResolved
	}
	delete(m.requests, id)
	for i, rid := range m.reqOrder {
		if rid == id {
			m.reqOrder = append(m.reqOrder[:i], m.reqOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) ListPendingRequests(_ context.Context) ([]points.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPendingLocked()
}

func (m *Memory) listPendingLocked() ([]points.Request, error) {
	out := []points.Request{}
	for _, id := range m.reqOrder {
		if r, ok := m.requests[id]; ok && !r.Granted {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ListRequestsFor(_ context.Context, email string) ([]points.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listForLocked(email)
}

func (m *Memory) listForLocked(email string) ([]points.Request, error) {
	out := []points.Request{}
	for _, id := range m.reqOrder {
		if r, ok := m.requests[id]; ok && r.Email == email {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback
// =============================================================================

// WithTx executes fn while holding the write lock, against a view whose
// methods skip locking. On error the pre-transaction snapshot is
// restored, giving the same all-or-nothing behavior as a SQL rollback.
func (m *Memory) WithTx(_ context.Context, fn func(points.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users      map[string]*points.User
	userOrder  []string
	records    []points.PointRecord
	nextSeq    int64
	prizes     map[int64]points.Prize
	prizeOrder []int64
	categories []points.RewardCategory
	teams      map[points.TeamID]points.Team
	teamOrder  []points.TeamID
	requests   map[string]points.Request
	reqOrder   []string
}

func (m *Memory) snapshot() memorySnapshot {
	users := make(map[string]*points.User, len(m.users))
	for k, v := range m.users {
		cp := *v
		cp.Teams = append([]points.TeamID(nil), v.Teams...)
		users[k] = &cp
	}
	prizes := make(map[int64]points.Prize, len(m.prizes))
	for k, v := range m.prizes {
		prizes[k] = v
	}
	teams := make(map[points.TeamID]points.Team, len(m.teams))
	for k, v := range m.teams {
		teams[k] = v
	}
	requests := make(map[string]points.Request, len(m.requests))
	for k, v := range m.requests {
		requests[k] = v
	}
	return memorySnapshot{
		users:      users,
		userOrder:  append([]string(nil), m.userOrder...),
		records:    append([]points.PointRecord(nil), m.records...),
		nextSeq:    m.nextSeq,
		prizes:     prizes,
		prizeOrder: append([]int64(nil), m.prizeOrder...),
		categories: append([]points.RewardCategory(nil), m.categories...),
		teams:      teams,
		teamOrder:  append([]points.TeamID(nil), m.teamOrder...),
		requests:   requests,
		reqOrder:   append([]string(nil), m.reqOrder...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.userOrder = s.userOrder
	m.records = s.records
	m.nextSeq = s.nextSeq
	m.prizes = s.prizes
	m.prizeOrder = s.prizeOrder
	m.categories = s.categories
	m.teams = s.teams
	m.teamOrder = s.teamOrder
	m.requests = s.requests
	m.reqOrder = s.reqOrder
}

// txView exposes the store to WithTx callbacks. The parent's lock is
// already held, so every method goes straight to the *Locked form.
type txView struct {
	m *Memory
}

var _ points.Store = (*txView)(nil)

func (v *txView) GetUser(_ context.Context, email string) (*points.User, error) {
	return v.m.getUserLocked(email)
}
func (v *txView) PutUser(_ context.Context, u *points.User) error { return v.m.putUserLocked(u) }
func (v *txView) ListUsers(_ context.Context) ([]points.User, error) {
	return v.m.listUsersLocked()
}
func (v *txView) FindUsers(_ context.Context, f points.Filter) ([]points.User, error) {
	return v.m.findUsersLocked(f)
}
func (v *txView) CreditPoints(_ context.Context, email string, delta int64) error {
	return v.m.creditPointsLocked(email, delta)
}
func (v *txView) DebitPointsConditional(_ context.Context, email string, amount int64) error {
	return v.m.debitConditionalLocked(email, amount)
}
func (v *txView) SetUserToken(_ context.Context, email, kind, ciphertext string) error {
	return v.m.setUserTokenLocked(email, kind, ciphertext)
}
func (v *txView) AppendPointRecord(_ context.Context, rec points.PointRecord) error {
	return v.m.appendRecordLocked(rec)
}
func (v *txView) PointRecordsFor(_ context.Context, email string) ([]points.PointRecord, error) {
	return v.m.recordsForLocked(email)
}
func (v *txView) GetPrize(_ context.Context, id int64) (*points.Prize, error) {
	return v.m.getPrizeLocked(id)
}
func (v *txView) ListPrizes(_ context.Context) ([]points.Prize, error) {
	return v.m.listPrizesLocked()
}
func (v *txView) PutPrize(_ context.Context, p points.Prize) error { return v.m.putPrizeLocked(p) }
func (v *txView) ListRewardCategories(_ context.Context) ([]points.RewardCategory, error) {
	return v.m.listCategoriesLocked()
}
func (v *txView) PutRewardCategory(_ context.Context, c points.RewardCategory) error {
	return v.m.putCategoryLocked(c)
}
func (v *txView) ListTeams(_ context.Context) ([]points.Team, error) {
	return v.m.listTeamsLocked()
}
func (v *txView) PutTeam(_ context.Context, t points.Team) error { return v.m.putTeamLocked(t) }
func (v *txView) InsertRequest(_ context.Context, r points.Request) error {
	return v.m.insertRequestLocked(r)
}
func (v *txView) GetRequest(_ context.Context, id string) (*points.Request, error) {
	return v.m.getRequestLocked(id)
}
func (v *txView) MarkRequestGranted(_ context.Context, id string) error {
	return v.m.markGrantedLocked(id)
}
func (v *txView) DeletePendingRequest(_ context.Context, id string) error {
	return v.m.deletePendingLocked(id)
}
func (v *txView) ListPendingRequests(_ context.Context) ([]points.Request, error) {
	return v.m.listPendingLocked()
}
func (v *txView) ListRequestsFor(_ context.Context, email string) ([]points.Request, error) {
	return v.m.listForLocked(email)
}
