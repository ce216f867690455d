/*
handlers.go - HTTP handlers for the SynePoints API

PURPOSE:
  Thin view layer over the points domain: parse and validate input,
  resolve the acting identity, call the domain, map the error taxonomy
  to HTTP statuses. No business rules live here.

ERROR MAPPING:
  400  insufficient points, non-requestable prize, validation failure
  401  missing/invalid session
  403  role check failed
  404  user/prize/request not found
  409  grant/cancel race lost (already resolved)
  500  store unavailable, vault crypto failure, everything else

SEE ALSO:
  - dto.go: request/response shapes
  - identity.go: session-token middleware
  - server.go: routing
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/synetech/synepoints/auth"
	"github.com/synetech/synepoints/integrations/jira"
	"github.com/synetech/synepoints/integrations/toggl"
	"github.com/synetech/synepoints/points"
	"github.com/synetech/synepoints/vault"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     points.TxStore
	Ledger    *points.Ledger
	Workflow  *points.Workflow
	Directory *points.Directory
	Vault     *vault.Vault
	Sessions  *auth.Sessions
	Google    *auth.Google
	Log       *logrus.Logger

	JiraBaseURL  string
	TogglBaseURL string

	// DevIdentityHeader allows X-Debug-Email instead of a session.
	DevIdentityHeader bool

	validate *validator.Validate
}

func NewHandler(store points.TxStore, v *vault.Vault, sessions *auth.Sessions, google *auth.Google, log *logrus.Logger) *Handler {
	return &Handler{
		Store:     store,
		Ledger:    points.NewLedger(store, log),
		Workflow:  points.NewWorkflow(store, log),
		Directory: points.NewDirectory(store),
		Vault:     v,
		Sessions:  sessions,
		Google:    google,
		Log:       log,
		validate:  validator.New(),
	}
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// AUTH
// =============================================================================

// ExchangeGoogleCode trades an OAuth authorization code for a session
// token, enforcing the hosted-domain restriction.
func (h *Handler) ExchangeGoogleCode(w http.ResponseWriter, r *http.Request) {
	var req ExchangeCodeRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	identity, err := h.Google.Exchange(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, auth.ErrDomainNotAllowed) {
			writeError(w, http.StatusForbidden, "account outside the allowed domain", err)
			return
		}
		writeError(w, http.StatusUnauthorized, "sign-in failed", err)
		return
	}
	if !identity.Verified {
		writeError(w, http.StatusForbidden, "email not verified", nil)
		return
	}

	// Sign-in does not provision: unknown users must be created by an
	// admin first.
	if _, err := h.Store.GetUser(r.Context(), identity.Email); err != nil {
		h.writeDomainError(w, err)
		return
	}

	token, err := h.Sessions.Issue(identity.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue session", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionDTO{Token: token, Email: identity.Email})
}

// =============================================================================
// OVERVIEW & POINTS
// =============================================================================

// Overview returns the landing-screen data for the acting user.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	email := actorEmail(r.Context())

	balance, err := h.Ledger.GetBalance(r.Context(), email)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	leaderboard, err := h.Ledger.Leaderboard(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	requests, err := h.Workflow.ListRequestsFor(r.Context(), email)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dto := OverviewDTO{
		Email:       email,
		Points:      balance,
		Leaderboard: make([]LeaderboardEntryDTO, len(leaderboard)),
		Requests:    make([]RequestDTO, len(requests)),
	}
	for i, e := range leaderboard {
		dto.Leaderboard[i] = LeaderboardEntryDTO{Email: e.Email, Points: e.Points}
	}
	for i, v := range requests {
		dto.Requests[i] = toRequestDTO(v)
	}
	writeJSON(w, http.StatusOK, dto)
}

// AwardPoints assigns points to one or more recipients. Role checks
// happen in the ledger.
func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	var req AwardPointsRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	actor := actorEmail(r.Context())
	for _, subject := range req.Emails {
		if err := h.Ledger.AwardPoints(r.Context(), actor, subject, req.Points, req.Reason); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"awarded": len(req.Emails)})
}

// PointRecords returns the audit trail for a user. Regular users see
// only their own; awarding roles may inspect anyone's.
func (h *Handler) PointRecords(w http.ResponseWriter, r *http.Request) {
	actor := actorEmail(r.Context())
	target := r.URL.Query().Get("user")
	if target == "" {
		target = actor
	}

	if target != actor {
		user, err := h.Store.GetUser(r.Context(), actor)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		if !user.Role.CanAward() {
			writeError(w, http.StatusForbidden, "cannot view other users' records", nil)
			return
		}
	}

	records, err := h.Ledger.History(r.Context(), target)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]PointRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toPointRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DIRECTORY
// =============================================================================

// FindUsers backs the award-recipients picker: substring of email,
// optionally narrowed to a team.
func (h *Handler) FindUsers(w http.ResponseWriter, r *http.Request) {
	filter := points.Filter{
		EmailContains: r.URL.Query().Get("contains"),
		TeamID:        points.TeamID(r.URL.Query().Get("team")),
	}
	var users []points.User
	var err error
	if filter == (points.Filter{}) {
		users, err = h.Directory.ListUsers(r.Context())
	} else {
		users, err = h.Directory.FindUsers(r.Context(), filter)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser provisions a user. Admin only (enforced by the directory).
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	teams := make([]points.TeamID, len(req.Teams))
	for i, t := range req.Teams {
		teams[i] = points.TeamID(t)
	}
	user := &points.User{
		Email:    req.Email,
		FullName: req.FullName,
		Role:     points.Role(req.Role),
		Teams:    teams,
	}
	if err := h.Directory.ProvisionUser(r.Context(), actorEmail(r.Context()), user); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*user))
}

func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.Directory.ListTeams(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]TeamDTO, len(teams))
	for i, t := range teams {
		dtos[i] = TeamDTO{ID: string(t.ID), Name: t.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PRIZES & REQUESTS
// =============================================================================

func (h *Handler) ListPrizes(w http.ResponseWriter, r *http.Request) {
	prizes, err := h.Store.ListPrizes(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]PrizeDTO, len(prizes))
	for i, p := range prizes {
		dtos[i] = PrizeDTO{
			ID:          p.ID,
			Description: p.Description,
			Price:       p.Price,
			Purchasable: p.Purchasable(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RequestPrize reserves a prize for the acting user.
func (h *Handler) RequestPrize(w http.ResponseWriter, r *http.Request) {
	prizeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prize id", err)
		return
	}

	req, err := h.Workflow.RequestPrize(r.Context(), actorEmail(r.Context()), prizeID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"request_id": req.ID})
}

// PendingRequests lists ungranted requests for the admin grant screen.
func (h *Handler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := h.Store.GetUser(r.Context(), actorEmail(r.Context()))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !actor.Role.CanGrant() {
		writeError(w, http.StatusForbidden, "admin role required", nil)
		return
	}

	views, err := h.Workflow.ListPendingRequests(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RequestDTO, len(views))
	for i, v := range views {
		dtos[i] = toRequestDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MyRequests lists the acting user's requests.
func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	views, err := h.Workflow.ListRequestsFor(r.Context(), actorEmail(r.Context()))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RequestDTO, len(views))
	for i, v := range views {
		dtos[i] = toRequestDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GrantRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Workflow.GrantRequest(r.Context(), actorEmail(r.Context()), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Workflow.CancelRequest(r.Context(), actorEmail(r.Context()), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// =============================================================================
// REWARD CATALOG
// =============================================================================

func (h *Handler) ListRewardCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Store.ListRewardCategories(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RewardCategoryDTO, len(categories))
	for i, c := range categories {
		items := make([]RewardItemDTO, len(c.Items))
		for j, item := range c.Items {
			items[j] = RewardItemDTO{Description: item.Description, PointValue: item.PointValue}
		}
		dtos[i] = RewardCategoryDTO{Name: c.Name, Items: items}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INTEGRATIONS
// =============================================================================

// StoreToken saves an encrypted Jira/Toggl token for the acting user.
func (h *Handler) StoreToken(w http.ResponseWriter, r *http.Request) {
	kind, ok := vault.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown token kind", nil)
		return
	}
	var req StoreTokenRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.Vault.StoreToken(r.Context(), actorEmail(r.Context()), kind, req.Token); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// jiraClient builds a per-user Jira client from the vault token.
func (h *Handler) jiraClient(r *http.Request) (*jira.Client, error) {
	email := actorEmail(r.Context())
	token, ok, err := h.Vault.GetToken(r.Context(), email, vault.KindJira)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoToken
	}
	return jira.New(h.JiraBaseURL, email, token), nil
}

func (h *Handler) togglClient(r *http.Request) (*toggl.Client, error) {
	token, ok, err := h.Vault.GetToken(r.Context(), actorEmail(r.Context()), vault.KindToggl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoToken
	}
	return toggl.New(h.TogglBaseURL, token, "SynePoints"), nil
}

var errNoToken = errors.New("no token stored")

// JiraTasks lists the acting user's open Jira issues.
func (h *Handler) JiraTasks(w http.ResponseWriter, r *http.Request) {
	client, err := h.jiraClient(r)
	if err != nil {
		h.writeIntegrationError(w, "jira", err)
		return
	}
	issues, err := client.OpenIssues(r.Context())
	if err != nil {
		h.writeIntegrationError(w, "jira", err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// TogglCurrent returns the running time entry, if any.
func (h *Handler) TogglCurrent(w http.ResponseWriter, r *http.Request) {
	client, err := h.togglClient(r)
	if err != nil {
		h.writeIntegrationError(w, "toggl", err)
		return
	}
	entry, err := client.CurrentTimeEntry(r.Context())
	if err != nil {
		h.writeIntegrationError(w, "toggl", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// TogglStart starts a time entry on the named task.
func (h *Handler) TogglStart(w http.ResponseWriter, r *http.Request) {
	var req TogglTaskRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	client, err := h.togglClient(r)
	if err != nil {
		h.writeIntegrationError(w, "toggl", err)
		return
	}
	entry, err := client.StartTimeEntry(r.Context(), req.WorkspaceID, req.TaskName)
	if err != nil {
		h.writeIntegrationError(w, "toggl", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// TogglStop stops the running entry when it matches the named task.
func (h *Handler) TogglStop(w http.ResponseWriter, r *http.Request) {
	var req TogglTaskRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	client, err := h.togglClient(r)
	if err != nil {
		h.writeIntegrationError(w, "toggl", err)
		return
	}
	entry, err := client.StopTimeEntry(r.Context(), req.WorkspaceID, req.TaskName)
	if err != nil {
		h.writeIntegrationError(w, "toggl", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// =============================================================================
// ERROR MAPPING & RESPONSE HELPERS
// =============================================================================

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case points.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, points.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, points.ErrInsufficientPoints),
		errors.Is(err, points.ErrNotRequestable):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, points.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, vault.ErrCrypto):
		h.Log.WithError(err).Error("vault decryption failure")
		writeError(w, http.StatusInternalServerError, "credential decryption failed", nil)
	default:
		h.Log.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func (h *Handler) writeIntegrationError(w http.ResponseWriter, service string, err error) {
	if errors.Is(err, errNoToken) {
		writeError(w, http.StatusBadRequest, "no "+service+" token stored", nil)
		return
	}
	if errors.Is(err, vault.ErrCrypto) || points.IsNotFound(err) {
		h.writeDomainError(w, err)
		return
	}
	h.Log.WithField("service", service).WithError(err).Warn("integration call failed")
	writeError(w, http.StatusBadGateway, service+" request failed", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
