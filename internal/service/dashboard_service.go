package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/observability"
	"github.com/noah-isme/codemeet-api/internal/repository"
)

// DashboardService produces platform wide statistics for teachers.
type DashboardService interface {
	Stats(ctx context.Context) (dto.DashboardResponse, bool, error)
	Invalidate(ctx context.Context)
}

type dashboardService struct {
	accounts  repository.AccountRepository
	questions repository.QuestionRepository
	rooms     repository.RoomRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDashboardService builds the dashboard aggregator.
func NewDashboardService(accounts repository.AccountRepository, questions repository.QuestionRepository, rooms repository.RoomRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		accounts:  accounts,
		questions: questions,
		rooms:     rooms,
		cache:     cache,
		cacheTTL:  ttl,
		logger:    logger.With().Str("component", "dashboard_service").Logger(),
		now:       time.Now,
	}
}

// Stats returns the aggregated statistics and whether they were served from cache.
func (s *dashboardService) Stats(ctx context.Context) (dto.DashboardResponse, bool, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, dashboardCacheKey).Result(); err == nil {
			var response dto.DashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.CacheLookups().WithLabelValues("dashboard", "hit").Inc()
				s.logger.Debug().Msg("dashboard cache hit")
				return response, true, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
		observability.CacheLookups().WithLabelValues("dashboard", "miss").Inc()
	}

	users, err := s.accounts.Count(ctx)
	if err != nil {
		return dto.DashboardResponse{}, false, err
	}
	questions, err := s.questions.Count(ctx)
	if err != nil {
		return dto.DashboardResponse{}, false, err
	}
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return dto.DashboardResponse{}, false, err
	}
	solved, err := s.accounts.SolvedCounts(ctx)
	if err != nil {
		return dto.DashboardResponse{}, false, err
	}

	response := s.buildResponse(users, questions, rooms, solved)

	if s.cache != nil && s.cacheTTL > 0 {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, dashboardCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, false, nil
}

// Invalidate drops the cached statistics.
func (s *dashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardCacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate dashboard cache")
	}
}

// buildResponse counts classes by distinct stream call id, since several
// rooms may share one call.
func (s *dashboardService) buildResponse(users, questions int64, rooms []models.Room, solved []repository.SolvedCount) dto.DashboardResponse {
	now := s.now()
	calls := map[string]map[string]struct{}{
		models.MeetingUpcoming:  {},
		models.MeetingLive:      {},
		models.MeetingCompleted: {},
	}
	for _, room := range rooms {
		calls[room.MeetingStatus(now)][room.StreamCallID] = struct{}{}
	}

	leaderboard := make([]dto.SolvedByUser, 0, len(solved))
	for _, row := range solved {
		leaderboard = append(leaderboard, dto.SolvedByUser(row))
	}

	return dto.DashboardResponse{
		TotalUsers:       users,
		TotalQuestions:   questions,
		UpcomingClasses:  len(calls[models.MeetingUpcoming]),
		LiveClasses:      len(calls[models.MeetingLive]),
		CompletedClasses: len(calls[models.MeetingCompleted]),
		SolvedByUser:     leaderboard,
	}
}
