package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/repository"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func seedAccount(t *testing.T, repo repository.AccountRepository, subject, role string) models.Account {
	t.Helper()
	account := models.Account{Subject: subject, Name: subject, Email: subject + "@example.com", Role: role}
	created, err := repo.CreateIfAbsent(context.Background(), &account)
	require.NoError(t, err)
	require.True(t, created)
	return account
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []RunEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Start(ctx context.Context) {}

func (p *recordingPublisher) NodeID() string { return "test-node" }

func (p *recordingPublisher) recorded() []RunEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RunEvent(nil), p.events...)
}
