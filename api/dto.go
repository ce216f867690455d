/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupled from the domain
  types. Request bodies carry validator tags; handlers run them through
  the shared validator before touching the domain.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
*/
package api

import (
	"time"

	"github.com/synetech/synepoints/points"
)

// =============================================================================
// AUTH
// =============================================================================

type ExchangeCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

type SessionDTO struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// =============================================================================
// USERS & DIRECTORY
// =============================================================================

type UserDTO struct {
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     string   `json:"role"`
	Points   int64    `json:"points"`
	Teams    []string `json:"teams"`
}

func toUserDTO(u points.User) UserDTO {
	teams := make([]string, len(u.Teams))
	for i, t := range u.Teams {
		teams[i] = string(t)
	}
	return UserDTO{
		Email:    u.Email,
		FullName: u.FullName,
		Role:     string(u.Role),
		Points:   u.Points,
		Teams:    teams,
	}
}

type CreateUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	FullName string   `json:"full_name" validate:"required"`
	Role     string   `json:"role" validate:"omitempty,oneof=user pm admin"`
	Teams    []string `json:"teams" validate:"dive,required"`
}

type TeamDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// =============================================================================
// POINTS
// =============================================================================

type AwardPointsRequest struct {
	Emails []string `json:"emails" validate:"required,min=1,dive,email"`
	Points int64    `json:"points" validate:"required"`
	Reason string   `json:"reason" validate:"required"`
}

type PointRecordDTO struct {
	Seq       int64  `json:"seq"`
	ChangedBy string `json:"changed_by"`
	User      string `json:"user"`
	Reason    string `json:"reason"`
	Points    int64  `json:"points"`
	RequestID string `json:"request_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toPointRecordDTO(r points.PointRecord) PointRecordDTO {
	return PointRecordDTO{
		Seq:       r.Seq,
		ChangedBy: r.ChangedBy,
		User:      r.User,
		Reason:    r.Reason,
		Points:    r.Points,
		RequestID: r.RequestID,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

type LeaderboardEntryDTO struct {
	Email  string `json:"email"`
	Points int64  `json:"points"`
}

// OverviewDTO backs the landing screen: own balance, the leaderboard,
// and own prize requests.
type OverviewDTO struct {
	Email       string                `json:"email"`
	Points      int64                 `json:"points"`
	Leaderboard []LeaderboardEntryDTO `json:"leaderboard"`
	Requests    []RequestDTO          `json:"requests"`
}

// =============================================================================
// PRIZES & REQUESTS
// =============================================================================

type PrizeDTO struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Purchasable bool   `json:"purchasable"`
}

type RequestDTO struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	PrizeID          int64  `json:"prize_id"`
	PrizeDescription string `json:"prize_description"`
	Price            int64  `json:"price"`
	Granted          bool   `json:"granted"`
	CreatedAt        string `json:"created_at"`
}

func toRequestDTO(v points.RequestView) RequestDTO {
	return RequestDTO{
		ID:               v.ID,
		Email:            v.Email,
		PrizeID:          v.PrizeID,
		PrizeDescription: v.PrizeDescription,
		Price:            v.Price,
		Granted:          v.Granted,
		CreatedAt:        v.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// REWARD CATALOG
// =============================================================================

type RewardItemDTO struct {
	Description string `json:"description"`
	PointValue  int64  `json:"point_value"`
}

type RewardCategoryDTO struct {
	Name  string          `json:"name"`
	Items []RewardItemDTO `json:"items"`
}

// =============================================================================
// INTEGRATIONS
// =============================================================================

type StoreTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type TogglTaskRequest struct {
	TaskName    string `json:"task_name" validate:"required"`
	WorkspaceID int64  `json:"workspace_id" validate:"required"`
}
