package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/repository"
)

func twoSumRequest() dto.CreateQuestionRequest {
	return dto.CreateQuestionRequest{
		Title:       "Two Sum",
		Description: "Return indices of the two numbers that add up to target.",
		Level:       models.LevelEasy,
		Examples:    []dto.QuestionExample{{Input: "nums = [2,7,11,15], target = 9", Output: "[0,1]"}},
		StarterCode: dto.StarterCode{
			JavaScript: "function twoSum(nums, target) {\n}",
			Python:     "def two_sum(nums, target):\n    pass",
		},
		Constraints: []string{"2 <= nums.length <= 10^4"},
	}
}

func newQuestionFixture(t *testing.T) (QuestionService, repository.AccountRepository, *recordingPublisher) {
	t.Helper()
	db := setupServiceDB(t)
	_, cache := setupRedis(t)
	accounts := repository.NewAccountRepository(db)
	events := &recordingPublisher{}
	svc := NewQuestionService(repository.NewQuestionRepository(db), accounts, events, cache, time.Minute, newValidator(), zerolog.Nop())
	seedAccount(t, accounts, "teacher", models.RoleTeacher)
	seedAccount(t, accounts, "student", models.RoleStudent)
	return svc, accounts, events
}

func TestQuestionServiceMutationsRequireTeacher(t *testing.T) {
	svc, _, _ := newQuestionFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "student", twoSumRequest())
	require.ErrorIs(t, err, ErrForbidden)

	created, err := svc.Create(ctx, "teacher", twoSumRequest())
	require.NoError(t, err)
	require.Equal(t, "teacher", created.AuthorID)

	title := "Changed"
	_, err = svc.Update(ctx, "student", created.ID, dto.UpdateQuestionRequest{Title: &title})
	require.ErrorIs(t, err, ErrForbidden)

	require.ErrorIs(t, svc.Delete(ctx, "student", created.ID), ErrForbidden)
	require.ErrorIs(t, svc.Delete(ctx, "nobody", created.ID), ErrForbidden)
}

func TestQuestionServiceUpdatePatchesPresentFields(t *testing.T) {
	svc, _, _ := newQuestionFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "teacher", twoSumRequest())
	require.NoError(t, err)

	level := models.LevelMedium
	starter := dto.StarterCode{JavaScript: "const twoSum = (nums, target) => {}", Python: "def two_sum(nums, target):\n    return []"}
	updated, err := svc.Update(ctx, "teacher", created.ID, dto.UpdateQuestionRequest{Level: &level, StarterCode: &starter})
	require.NoError(t, err)
	require.Equal(t, "Two Sum", updated.Title)
	require.Equal(t, models.LevelMedium, updated.Level)
	require.Equal(t, starter, updated.StarterCode)
	require.Len(t, updated.Examples, 1)

	empty := "<script>alert(1)</script>"
	_, err = svc.Update(ctx, "teacher", created.ID, dto.UpdateQuestionRequest{Title: &empty})
	require.ErrorIs(t, err, ErrEmptyAfterSanitization)

	_, err = svc.Update(ctx, "teacher", 999, dto.UpdateQuestionRequest{Level: &level})
	require.ErrorIs(t, err, ErrQuestionNotFound)

	require.NoError(t, svc.Delete(ctx, "teacher", created.ID))
	require.ErrorIs(t, svc.Delete(ctx, "teacher", created.ID), ErrQuestionNotFound)

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestQuestionServiceListUsesCacheAndInvalidates(t *testing.T) {
	svc, _, _ := newQuestionFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "teacher", twoSumRequest())
	require.NoError(t, err)

	items, cached, err := svc.List(ctx)
	require.NoError(t, err)
	require.False(t, cached)
	require.Len(t, items, 1)

	items, cached, err = svc.List(ctx)
	require.NoError(t, err)
	require.True(t, cached)
	require.Len(t, items, 1)

	second := twoSumRequest()
	second.Title = "Three Sum"
	_, err = svc.Create(ctx, "teacher", second)
	require.NoError(t, err)

	items, cached, err = svc.List(ctx)
	require.NoError(t, err)
	require.False(t, cached)
	require.Len(t, items, 2)
}

func TestQuestionServiceMarkSolved(t *testing.T) {
	svc, _, events := newQuestionFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "teacher", twoSumRequest())
	require.NoError(t, err)

	first, err := svc.MarkSolved(ctx, "student", created.ID)
	require.NoError(t, err)
	require.False(t, first.AlreadySolved)
	require.Equal(t, MessageQuestionSolved, first.Message)

	again, err := svc.MarkSolved(ctx, "student", created.ID)
	require.NoError(t, err)
	require.True(t, again.AlreadySolved)
	require.Equal(t, MessageAlreadySolved, again.Message)

	_, err = svc.MarkSolved(ctx, "ghost", created.ID)
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = svc.MarkSolved(ctx, "student", 999)
	require.ErrorIs(t, err, ErrQuestionNotFound)

	recorded := events.recorded()
	require.Len(t, recorded, 1)
	require.Equal(t, EventQuestionSolved, recorded[0].Type)
	require.Equal(t, created.ID, recorded[0].QuestionID)
}
