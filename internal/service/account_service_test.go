package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/repository"
)

func TestAccountServiceSyncIsIdempotent(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewAccountService(repository.NewAccountRepository(db), newValidator(), zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Sync(ctx, "user_1", dto.SyncAccountRequest{Name: "<b>Ada</b>", Email: "ADA@example.com"})
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, "Ada", first.Account.Name)
	require.Equal(t, "ada@example.com", first.Account.Email)
	require.Equal(t, models.RoleStudent, first.Account.Role)

	second, err := svc.Sync(ctx, "user_1", dto.SyncAccountRequest{Name: "Renamed", Email: "other@example.com"})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Account.ID, second.Account.ID)
	require.Equal(t, "Ada", second.Account.Name)

	accounts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestAccountServiceSyncValidates(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewAccountService(repository.NewAccountRepository(db), newValidator(), zerolog.Nop())

	_, err := svc.Sync(context.Background(), "user_1", dto.SyncAccountRequest{Name: "Ada", Email: "not-an-email"})
	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))

	_, err = svc.Sync(context.Background(), " ", dto.SyncAccountRequest{Name: "Ada", Email: "ada@example.com"})
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAccountServiceSetRoleRequiresTeacher(t *testing.T) {
	db := setupServiceDB(t)
	repo := repository.NewAccountRepository(db)
	svc := NewAccountService(repo, newValidator(), zerolog.Nop())
	ctx := context.Background()

	seedAccount(t, repo, "teacher", models.RoleTeacher)
	seedAccount(t, repo, "student", models.RoleStudent)

	_, err := svc.SetRole(ctx, "student", "teacher", dto.UpdateRoleRequest{Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.SetRole(ctx, "stranger", "student", dto.UpdateRoleRequest{Role: models.RoleTeacher})
	require.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.SetRole(ctx, "teacher", "student", dto.UpdateRoleRequest{Role: models.RoleTeacher})
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, updated.Role)

	role, err := svc.Role(ctx, "student")
	require.NoError(t, err)
	require.Equal(t, models.RoleTeacher, role)

	_, err = svc.SetRole(ctx, "teacher", "missing", dto.UpdateRoleRequest{Role: models.RoleTeacher})
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = svc.SetRole(ctx, "teacher", "student", dto.UpdateRoleRequest{Role: "admin"})
	require.Error(t, err)
}
