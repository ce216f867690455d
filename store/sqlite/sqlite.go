/*
Package sqlite provides the SQLite-backed implementation of points.TxStore.

PURPOSE:
  Durable storage for users, the append-only point_records trail, the
  prize/reward catalogs, teams, and prize requests. The same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

CONDITIONAL UPDATES:
  The domain's race-prone sequences are closed here with single guarded
  statements instead of explicit locks:

    UPDATE users SET points = points - ? WHERE email = ? AND points >= ?
    UPDATE requests SET granted = 1     WHERE id = ? AND granted = 0
    DELETE FROM requests                WHERE id = ? AND granted = 0

  A zero row count means the precondition failed; a follow-up read
  distinguishes "row missing" from "race lost".

APPEND-ONLY ENFORCEMENT:
  point_records has INSERT and SELECT paths only. No UPDATE or DELETE
  statement for it exists in this package.

CONCURRENCY:
  SQLite is opened in WAL mode (readers don't block, single writer).
  A sync.RWMutex serializes writers in-process; WithTx holds the write
  lock for the whole transaction. With PostgreSQL the database's own
  concurrency control would take over.

SEE ALSO:
  - points/store.go: interface contracts and error semantics
  - points/store/memory.go: in-memory twin used by domain tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/synetech/synepoints/points"
)

// Store implements points.TxStore on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and matches
	// the single-writer model.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		points INTEGER NOT NULL DEFAULT 0,
		jira_token TEXT NOT NULL DEFAULT '',
		toggl_token TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teams (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_teams (
		user_email TEXT NOT NULL REFERENCES users(email),
		team_id TEXT NOT NULL REFERENCES teams(id),
		PRIMARY KEY (user_email, team_id)
	);

	-- Append-only audit trail. No UPDATE or DELETE path exists.
	CREATE TABLE IF NOT EXISTS point_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		changed_by TEXT NOT NULL,
		user_email TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		points INTEGER NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_point_records_user
		ON point_records(user_email, seq);

	CREATE TABLE IF NOT EXISTS prizes (
		id INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		price TEXT NOT NULL,
		requestable INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS reward_categories (
		name TEXT PRIMARY KEY,
		items_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		prize_id INTEGER NOT NULL,
		granted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_email ON requests(email);
	CREATE INDEX IF NOT EXISTS idx_requests_granted ON requests(granted);
	`
	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx so the same helpers
// serve plain calls and WithTx views.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &points.StoreError{Op: op, Err: err}
}

// =============================================================================
// USERS
// =============================================================================

func getUser(ctx context.Context, q queryer, email string) (*points.User, error) {
	var u points.User
	var created string
	err := q.QueryRowContext(ctx,
		`SELECT email, full_name, role, points, jira_token, toggl_token, created_at
		 FROM users WHERE email = ?`, email).
		Scan(&u.Email, &u.FullName, &u.Role, &u.Points, &u.JiraToken, &u.TogglToken, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, points.ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)

	rows, err := q.QueryContext(ctx,
		`SELECT team_id FROM user_teams WHERE user_email = ? ORDER BY rowid`, email)
	if err != nil {
		return nil, storeErr("get user teams", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id points.TeamID
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan user team", err)
		}
		u.Teams = append(u.Teams, id)
	}
	return &u, rows.Err()
}

func putUser(ctx context.Context, q queryer, u *points.User) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (email, full_name, role, points, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			full_name = excluded.full_name,
			role = excluded.role`,
		u.Email, u.FullName, string(u.Role), u.Points, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return storeErr("put user", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM user_teams WHERE user_email = ?`, u.Email); err != nil {
		return storeErr("clear user teams", err)
	}
	for _, t := range u.Teams {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO user_teams (user_email, team_id) VALUES (?, ?)`, u.Email, string(t)); err != nil {
			return storeErr("put user team", err)
		}
	}
	return nil
}

func scanUsers(ctx context.Context, q queryer, rows *sql.Rows) ([]points.User, error) {
	defer rows.Close()
	users := []points.User{}
	for rows.Next() {
		var u points.User
		var created string
		if err := rows.Scan(&u.Email, &u.FullName, &u.Role, &u.Points, &u.JiraToken, &u.TogglToken, &created); err != nil {
			return nil, storeErr("scan user", err)
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339, created)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate users", err)
	}

	// Attach memberships in one pass instead of a query per user.
	trows, err := q.QueryContext(ctx, `SELECT user_email, team_id FROM user_teams ORDER BY rowid`)
	if err != nil {
		return nil, storeErr("load memberships", err)
	}
	defer trows.Close()
	byEmail := make(map[string][]points.TeamID)
	for trows.Next() {
		var email string
		var id points.TeamID
		if err := trows.Scan(&email, &id); err != nil {
			return nil, storeErr("scan membership", err)
		}
		byEmail[email] = append(byEmail[email], id)
	}
	for i := range users {
		users[i].Teams = byEmail[users[i].Email]
	}
	return users, trows.Err()
}

func listUsers(ctx context.Context, q queryer) ([]points.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT email, full_name, role, points, jira_token, toggl_token, created_at
		 FROM users ORDER BY rowid`)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return scanUsers(ctx, q, rows)
}

func findUsers(ctx context.Context, q queryer, f points.Filter) ([]points.User, error) {
	query := `SELECT u.email, u.full_name, u.role, u.points, u.jira_token, u.toggl_token, u.created_at
		  FROM users u WHERE 1=1`
	args := []any{}
	if f.EmailContains != "" {
		query += ` AND instr(u.email, ?) > 0`
		args = append(args, f.EmailContains)
	}
	if f.TeamID != "" {
		query += ` AND EXISTS (SELECT 1 FROM user_teams ut WHERE ut.user_email = u.email AND ut.team_id = ?)`
		args = append(args, string(f.TeamID))
	}
	query += ` ORDER BY u.rowid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("find users", err)
	}
	return scanUsers(ctx, q, rows)
}

func creditPoints(ctx context.Context, q queryer, email string, delta int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET points = points + ? WHERE email = ?`, delta, email)
	if err != nil {
		return storeErr("credit points", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("credit points", err)
	}
	if n == 0 {
		return points.ErrUserNotFound
	}
	return nil
}

func debitPointsConditional(ctx context.Context, q queryer, email string, amount int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET points = points - ? WHERE email = ? AND points >= ?`,
		amount, email, amount)
	if err != nil {
		return storeErr("debit points", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("debit points", err)
	}
	if n > 0 {
		return nil
	}

	// Precondition failed: unknown user or insufficient balance.
	var balance int64
	err = q.QueryRowContext(ctx, `SELECT points FROM users WHERE email = ?`, email).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return points.ErrUserNotFound
	}
	if err != nil {
		return storeErr("debit points", err)
	}
	return &points.InsufficientPointsError{Email: email, Balance: balance, Price: amount}
}

func setUserToken(ctx context.Context, q queryer, email, kind, ciphertext string) error {
	var column string
	switch kind {
	case "jira":
		column = "jira_token"
	case "toggl":
		column = "toggl_token"
	default:
		return storeErr("set token", fmt.Errorf("unknown token kind %q", kind))
	}
	res, err := q.ExecContext(ctx,
		`UPDATE users SET `+column+` = ? WHERE email = ?`, ciphertext, email)
	if err != nil {
		return storeErr("set token", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("set token", err)
	}
	if n == 0 {
		return points.ErrUserNotFound
	}
	return nil
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func appendPointRecord(ctx context.Context, q queryer, rec points.PointRecord) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO point_records (changed_by, user_email, reason, points, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ChangedBy, rec.User, rec.Reason, rec.Points, rec.RequestID,
		time.Now().UTC().Format(time.RFC3339))
	return storeErr("append point record", err)
}

func pointRecordsFor(ctx context.Context, q queryer, email string) ([]points.PointRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT seq, changed_by, user_email, reason, points, request_id, created_at
		 FROM point_records WHERE user_email = ? ORDER BY seq`, email)
	if err != nil {
		return nil, storeErr("load point records", err)
	}
	defer rows.Close()

	out := []points.PointRecord{}
	for rows.Next() {
		var r points.PointRecord
		var created string
		if err := rows.Scan(&r.Seq, &r.ChangedBy, &r.User, &r.Reason, &r.Points, &r.RequestID, &created); err != nil {
			return nil, storeErr("scan point record", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// PRIZES & REWARD CATALOG
// =============================================================================

func getPrize(ctx context.Context, q queryer, id int64) (*points.Prize, error) {
	var p points.Prize
	var requestable int
	err := q.QueryRowContext(ctx,
		`SELECT id, description, price, requestable FROM prizes WHERE id = ?`, id).
		Scan(&p.ID, &p.Description, &p.Price, &requestable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, points.ErrPrizeNotFound
	}
	if err != nil {
		return nil, storeErr("get prize", err)
	}
	p.Requestable = requestable != 0
	return &p, nil
}

func listPrizes(ctx context.Context, q queryer) ([]points.Prize, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, description, price, requestable FROM prizes ORDER BY id`)
	if err != nil {
		return nil, storeErr("list prizes", err)
	}
	defer rows.Close()

	out := []points.Prize{}
	for rows.Next() {
		var p points.Prize
		var requestable int
		if err := rows.Scan(&p.ID, &p.Description, &p.Price, &requestable); err != nil {
			return nil, storeErr("scan prize", err)
		}
		p.Requestable = requestable != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func putPrize(ctx context.Context, q queryer, p points.Prize) error {
	requestable := 0
	if p.Requestable {
		requestable = 1
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO prizes (id, description, price, requestable) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			price = excluded.price,
			requestable = excluded.requestable`,
		p.ID, p.Description, p.Price, requestable)
	return storeErr("put prize", err)
}

func listRewardCategories(ctx context.Context, q queryer) ([]points.RewardCategory, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, items_json FROM reward_categories ORDER BY rowid`)
	if err != nil {
		return nil, storeErr("list reward categories", err)
	}
	defer rows.Close()

	out := []points.RewardCategory{}
	for rows.Next() {
		var c points.RewardCategory
		var itemsJSON string
		if err := rows.Scan(&c.Name, &itemsJSON); err != nil {
			return nil, storeErr("scan reward category", err)
		}
		if err := json.Unmarshal([]byte(itemsJSON), &c.Items); err != nil {
			return nil, storeErr("decode reward category", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func putRewardCategory(ctx context.Context, q queryer, c points.RewardCategory) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return storeErr("encode reward category", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO reward_categories (name, items_json) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET items_json = excluded.items_json`,
		c.Name, string(itemsJSON))
	return storeErr("put reward category", err)
}

// =============================================================================
// TEAMS
// =============================================================================

func listTeams(ctx context.Context, q queryer) ([]points.Team, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM teams ORDER BY rowid`)
	if err != nil {
		return nil, storeErr("list teams", err)
	}
	defer rows.Close()

	out := []points.Team{}
	for rows.Next() {
		var t points.Team
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, storeErr("scan team", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func putTeam(ctx context.Context, q queryer, t points.Team) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO teams (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		string(t.ID), t.Name)
	return storeErr("put team", err)
}

// =============================================================================
// REQUESTS
// =============================================================================

func insertRequest(ctx context.Context, q queryer, r points.Request) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	granted := 0
	if r.Granted {
		granted = 1
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO requests (id, email, prize_id, granted, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Email, r.PrizeID, granted, created.Format(time.RFC3339))
	return storeErr("insert request", err)
}

func getRequest(ctx context.Context, q queryer, id string) (*points.Request, error) {
	var r points.Request
	var granted int
	var created string
	err := q.QueryRowContext(ctx,
		`SELECT id, email, prize_id, granted, created_at FROM requests WHERE id = ?`, id).
		Scan(&r.ID, &r.Email, &r.PrizeID, &granted, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, points.ErrRequestNotFound
	}
	if err != nil {
		return nil, storeErr("get request", err)
	}
	r.Granted = granted != 0
	r.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &r, nil
}

// resolvePending reports why a conditional transition matched no rows.
func resolvePending(ctx context.Context, q queryer, op, id string) error {
	var granted int
	err := q.QueryRowContext(ctx, `SELECT granted FROM requests WHERE id = ?`, id).Scan(&granted)
	if errors.Is(err, sql.ErrNoRows) {
		return points.ErrRequestNotFound
	}
	if err != nil {
		return storeErr(op, err)
	}
	return points.ErrAlreadyResolved
}

func markRequestGranted(ctx context.Context, q queryer, id string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE requests SET granted = 1 WHERE id = ? AND granted = 0`, id)
	if err != nil {
		return storeErr("grant request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("grant request", err)
	}
	if n > 0 {
		return nil
	}
	return resolvePending(ctx, q, "grant request", id)
}

func deletePendingRequest(ctx context.Context, q queryer, id string) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM requests WHERE id = ? AND granted = 0`, id)
	if err != nil {
		return storeErr("delete request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete request", err)
	}
	if n > 0 {
		return nil
	}
	return resolvePending(ctx, q, "delete request", id)
}

func listRequests(ctx context.Context, q queryer, where string, args ...any) ([]points.Request, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, email, prize_id, granted, created_at FROM requests `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, storeErr("list requests", err)
	}
	defer rows.Close()

	out := []points.Request{}
	for rows.Next() {
		var r points.Request
		var granted int
		var created string
		if err := rows.Scan(&r.ID, &r.Email, &r.PrizeID, &granted, &created); err != nil {
			return nil, storeErr("scan request", err)
		}
		r.Granted = granted != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// STORE METHODS (points.Store on *Store)
// =============================================================================

var _ points.TxStore = (*Store)(nil)

func (s *Store) GetUser(ctx context.Context, email string) (*points.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, email)
}

func (s *Store) PutUser(ctx context.Context, u *points.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putUser(ctx, s.db, u)
}

func (s *Store) ListUsers(ctx context.Context) ([]points.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(ctx, s.db)
}

func (s *Store) FindUsers(ctx context.Context, f points.Filter) ([]points.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findUsers(ctx, s.db, f)
}

func (s *Store) CreditPoints(ctx context.Context, email string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return creditPoints(ctx, s.db, email, delta)
}

func (s *Store) DebitPointsConditional(ctx context.Context, email string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return debitPointsConditional(ctx, s.db, email, amount)
}

func (s *Store) SetUserToken(ctx context.Context, email, kind, ciphertext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setUserToken(ctx, s.db, email, kind, ciphertext)
}

func (s *Store) AppendPointRecord(ctx context.Context, rec points.PointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendPointRecord(ctx, s.db, rec)
}

func (s *Store) PointRecordsFor(ctx context.Context, email string) ([]points.PointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pointRecordsFor(ctx, s.db, email)
}

func (s *Store) GetPrize(ctx context.Context, id int64) (*points.Prize, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPrize(ctx, s.db, id)
}

func (s *Store) ListPrizes(ctx context.Context) ([]points.Prize, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPrizes(ctx, s.db)
}

func (s *Store) PutPrize(ctx context.Context, p points.Prize) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putPrize(ctx, s.db, p)
}

func (s *Store) ListRewardCategories(ctx context.Context) ([]points.RewardCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRewardCategories(ctx, s.db)
}

func (s *Store) PutRewardCategory(ctx context.Context, c points.RewardCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putRewardCategory(ctx, s.db, c)
}

func (s *Store) ListTeams(ctx context.Context) ([]points.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTeams(ctx, s.db)
}

func (s *Store) PutTeam(ctx context.Context, t points.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putTeam(ctx, s.db, t)
}

func (s *Store) InsertRequest(ctx context.Context, r points.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRequest(ctx, s.db, r)
}

func (s *Store) GetRequest(ctx context.Context, id string) (*points.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

func (s *Store) MarkRequestGranted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markRequestGranted(ctx, s.db, id)
}

func (s *Store) DeletePendingRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePendingRequest(ctx, s.db, id)
}

func (s *Store) ListPendingRequests(ctx context.Context) ([]points.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequests(ctx, s.db, `WHERE granted = 0`)
}

func (s *Store) ListRequestsFor(ctx context.Context, email string) ([]points.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequests(ctx, s.db, `WHERE email = ?`, email)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside a single database transaction. The write lock is
// held for the duration so in-process writers cannot interleave.
func (s *Store) WithTx(ctx context.Context, fn func(points.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}

	if err := fn(&txStore{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return storeErr("rollback tx", errors.Join(err, rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit tx", err)
	}
	return nil
}

// txStore is the transactional view handed to WithTx callbacks. The
// parent already holds the write lock; methods go straight to the
// helpers over the *sql.Tx.
type txStore struct {
	q queryer
}

var _ points.Store = (*txStore)(nil)

func (t *txStore) GetUser(ctx context.Context, email string) (*points.User, error) {
	return getUser(ctx, t.q, email)
}
func (t *txStore) PutUser(ctx context.Context, u *points.User) error { return putUser(ctx, t.q, u) }
func (t *txStore) ListUsers(ctx context.Context) ([]points.User, error) {
	return listUsers(ctx, t.q)
}
func (t *txStore) FindUsers(ctx context.Context, f points.Filter) ([]points.User, error) {
	return findUsers(ctx, t.q, f)
}
func (t *txStore) CreditPoints(ctx context.Context, email string, delta int64) error {
	return creditPoints(ctx, t.q, email, delta)
}
func (t *txStore) DebitPointsConditional(ctx context.Context, email string, amount int64) error {
	return debitPointsConditional(ctx, t.q, email, amount)
}
func (t *txStore) SetUserToken(ctx context.Context, email, kind, ciphertext string) error {
	return setUserToken(ctx, t.q, email, kind, ciphertext)
}
func (t *txStore) AppendPointRecord(ctx context.Context, rec points.PointRecord) error {
	return appendPointRecord(ctx, t.q, rec)
}
func (t *txStore) PointRecordsFor(ctx context.Context, email string) ([]points.PointRecord, error) {
	return pointRecordsFor(ctx, t.q, email)
}
func (t *txStore) GetPrize(ctx context.Context, id int64) (*points.Prize, error) {
	return getPrize(ctx, t.q, id)
}
func (t *txStore) ListPrizes(ctx context.Context) ([]points.Prize, error) {
	return listPrizes(ctx, t.q)
}
func (t *txStore) PutPrize(ctx context.Context, p points.Prize) error { return putPrize(ctx, t.q, p) }
func (t *txStore) ListRewardCategories(ctx context.Context) ([]points.RewardCategory, error) {
	return listRewardCategories(ctx, t.q)
}
func (t *txStore) PutRewardCategory(ctx context.Context, c points.RewardCategory) error {
	return putRewardCategory(ctx, t.q, c)
}
func (t *txStore) ListTeams(ctx context.Context) ([]points.Team, error) {
	return listTeams(ctx, t.q)
}
func (t *txStore) PutTeam(ctx context.Context, tm points.Team) error { return putTeam(ctx, t.q, tm) }
func (t *txStore) InsertRequest(ctx context.Context, r points.Request) error {
	return insertRequest(ctx, t.q, r)
}
func (t *txStore) GetRequest(ctx context.Context, id string) (*points.Request, error) {
	return getRequest(ctx, t.q, id)
}
func (t *txStore) MarkRequestGranted(ctx context.Context, id string) error {
	return markRequestGranted(ctx, t.q, id)
}
func (t *txStore) DeletePendingRequest(ctx context.Context, id string) error {
	return deletePendingRequest(ctx, t.q, id)
}
func (t *txStore) ListPendingRequests(ctx context.Context) ([]points.Request, error) {
	return listRequests(ctx, t.q, `WHERE granted = 0`)
}
func (t *txStore) ListRequestsFor(ctx context.Context, email string) ([]points.Request, error) {
	return listRequests(ctx, t.q, `WHERE email = ?`, email)
}
