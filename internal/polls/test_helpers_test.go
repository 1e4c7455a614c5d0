package polls

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sequentialIDs struct {
	next int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%03d", p.next), nil
}

type steppingClock struct {
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(time.Minute)
	return c.current
}

type serviceFixture struct {
	service *Service
	db      *gorm.DB
	clock   *steppingClock
}

func newServiceFixture(t *testing.T, shareTTL time.Duration) serviceFixture {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "polls.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Poll{}, &PollOption{}, &Vote{}, &QRCode{}))

	clock := &steppingClock{current: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Database:     db,
		Clock:        clock.Now,
		IDProvider:   &sequentialIDs{},
		ShareBaseURL: "https://polly.example.com/",
		ShareTTL:     shareTTL,
	})
	require.NoError(t, err)
	return serviceFixture{service: service, db: db, clock: clock}
}

func createPoll(t *testing.T, service *Service, owner string, title string, options ...string) Poll {
	t.Helper()
	poll, err := service.CreatePoll(context.Background(), CreatePollInput{
		Title:   title,
		Options: options,
		UserID:  owner,
	})
	require.NoError(t, err)
	return poll
}
