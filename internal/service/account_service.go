package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/repository"
)

// ErrAccountNotFound indicates no account is mirrored for the identity subject.
var ErrAccountNotFound = errors.New("user not found")

// ErrForbidden indicates the caller's role does not allow the operation.
var ErrForbidden = errors.New("forbidden")

// ErrUnauthenticated indicates the operation needs an identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// AccountService mirrors identity provider users and manages their roles.
type AccountService interface {
	Sync(ctx context.Context, subject string, payload dto.SyncAccountRequest) (dto.SyncAccountResponse, error)
	List(ctx context.Context) ([]dto.AccountResponse, error)
	GetBySubject(ctx context.Context, subject string) (dto.AccountResponse, error)
	SetRole(ctx context.Context, callerSubject, subject string, payload dto.UpdateRoleRequest) (dto.AccountResponse, error)
	Role(ctx context.Context, subject string) (string, error)
}

type accountService struct {
	accounts  repository.AccountRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewAccountService constructs the account service.
func NewAccountService(accounts repository.AccountRepository, validate *validator.Validate, logger zerolog.Logger) AccountService {
	return &accountService{
		accounts:  accounts,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "account_service").Logger(),
	}
}

// Sync creates the account on first sight and is a no-op afterwards. New
// accounts always start as students.
func (s *accountService) Sync(ctx context.Context, subject string, payload dto.SyncAccountRequest) (dto.SyncAccountResponse, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return dto.SyncAccountResponse{}, ErrUnauthenticated
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.SyncAccountResponse{}, err
	}

	account := models.Account{
		Subject: subject,
		Name:    strings.TrimSpace(s.sanitizer.Sanitize(payload.Name)),
		Email:   strings.ToLower(strings.TrimSpace(payload.Email)),
		Image:   strings.TrimSpace(payload.Image),
		Role:    models.RoleStudent,
	}

	created, err := s.accounts.CreateIfAbsent(ctx, &account)
	if err != nil {
		return dto.SyncAccountResponse{}, err
	}
	if created {
		s.logger.Info().Str("subject", subject).Str("email", maskEmailAddress(account.Email)).Msg("account created")
	}

	stored, err := s.accounts.GetBySubject(ctx, subject)
	if err != nil {
		return dto.SyncAccountResponse{}, err
	}

	return dto.SyncAccountResponse{Account: dto.NewAccountResponse(stored), Created: created}, nil
}

func (s *accountService) List(ctx context.Context) ([]dto.AccountResponse, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewAccountListResponse(accounts), nil
}

func (s *accountService) GetBySubject(ctx context.Context, subject string) (dto.AccountResponse, error) {
	account, err := loadAccount(ctx, s.accounts, subject)
	if err != nil {
		return dto.AccountResponse{}, err
	}
	return dto.NewAccountResponse(account), nil
}

func (s *accountService) SetRole(ctx context.Context, callerSubject, subject string, payload dto.UpdateRoleRequest) (dto.AccountResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AccountResponse{}, err
	}
	if _, err := requireTeacher(ctx, s.accounts, callerSubject); err != nil {
		return dto.AccountResponse{}, err
	}

	if err := s.accounts.UpdateRole(ctx, subject, payload.Role); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AccountResponse{}, ErrAccountNotFound
		}
		return dto.AccountResponse{}, err
	}

	s.logger.Info().Str("subject", subject).Str("role", payload.Role).Str("changed_by", callerSubject).Msg("account role updated")
	return s.GetBySubject(ctx, subject)
}

// Role returns the stored role for subject.
func (s *accountService) Role(ctx context.Context, subject string) (string, error) {
	account, err := loadAccount(ctx, s.accounts, subject)
	if err != nil {
		return "", err
	}
	return account.Role, nil
}

func loadAccount(ctx context.Context, accounts repository.AccountRepository, subject string) (models.Account, error) {
	if strings.TrimSpace(subject) == "" {
		return models.Account{}, ErrUnauthenticated
	}
	account, err := accounts.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}

// requireTeacher checks the caller's stored role rather than token claims.
func requireTeacher(ctx context.Context, accounts repository.AccountRepository, subject string) (models.Account, error) {
	account, err := loadAccount(ctx, accounts, subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return models.Account{}, ErrForbidden
		}
		return models.Account{}, err
	}
	if !account.IsTeacher() {
		return models.Account{}, ErrForbidden
	}
	return account, nil
}
