package dto

import (
	"time"

	"github.com/noah-isme/codemeet-api/internal/models"
)

// SyncAccountRequest carries the identity provider profile to mirror.
type SyncAccountRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email"`
	Image string `json:"image" validate:"omitempty,url,max=512"`
}

// UpdateRoleRequest changes an account's role.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=student teacher"`
}

// AccountResponse represents an account returned by the API.
type AccountResponse struct {
	ID        uint      `json:"id"`
	Subject   string    `json:"subject"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncAccountResponse reports whether the account was newly created.
type SyncAccountResponse struct {
	Account AccountResponse `json:"account"`
	Created bool            `json:"created"`
}

// NewAccountResponse builds a response DTO from the model.
func NewAccountResponse(account models.Account) AccountResponse {
	return AccountResponse{
		ID:        account.ID,
		Subject:   account.Subject,
		Name:      account.Name,
		Email:     account.Email,
		Image:     account.Image,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
	}
}

// NewAccountListResponse converts a slice of accounts.
func NewAccountListResponse(accounts []models.Account) []AccountResponse {
	items := make([]AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		items = append(items, NewAccountResponse(account))
	}
	return items
}
