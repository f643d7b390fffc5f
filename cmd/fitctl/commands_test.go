package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitpass/internal/config"
	"fitpass/internal/models"
	"fitpass/internal/repositories"
	"fitpass/internal/server"
)

func newTestApp(now time.Time) (*app, *server.Stores, *bytes.Buffer) {
	stores := &server.Stores{
		Users:  repositories.NewMemoryUserRepository(),
		Resets: repositories.NewMemoryResetRequestRepository(),
	}
	out := &bytes.Buffer{}
	a := &app{
		cfg: &config.Config{
			StoreDriver:       config.StoreMemory,
			JWTSecret:         "cli-secret",
			JWTTTL:            time.Hour,
			BcryptCost:        4,
			PasswordMinLength: 8,
			ResetRetention:    24 * time.Hour,
		},
		out:  out,
		open: func(context.Context, *config.Config) (*server.Stores, error) { return stores, nil },
		now:  func() time.Time { return now },
	}
	return a, stores, out
}

func TestSeedUser(t *testing.T) {
	ctx := context.Background()
	a, stores, out := newTestApp(time.Now())

	err := a.command().Run(ctx, []string{"fitctl", "seed-user",
		"--username", "Ada", "--email", "Ada@Example.com", "--password", "Secret123!", "--role", "admin"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "created ada@example.com")

	user, err := stores.Users.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NotEqual(t, "Secret123!", user.Password)
}

func TestSeedUser_Rejects(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestApp(time.Now())

	err := a.command().Run(ctx, []string{"fitctl", "seed-user",
		"--username", "Ada", "--email", "ada@example.com", "--password", "Secret123!", "--role", "owner"})
	assert.Error(t, err)

	err = a.command().Run(ctx, []string{"fitctl", "seed-user",
		"--username", "Ada", "--email", "ada@example.com", "--password", "short"})
	assert.Error(t, err)
}

func TestPurgeResets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, stores, out := newTestApp(now)

	consumedAt := now.Add(-48 * time.Hour)
	require.NoError(t, stores.Resets.Replace(ctx, &models.ResetRequest{
		Identifier: "old@example.com",
		RequestID:  "r1",
		Channel:    models.ChannelEmail,
		IssuedAt:   consumedAt.Add(-time.Minute),
		ExpiresAt:  consumedAt.Add(14 * time.Minute),
		ConsumedAt: &consumedAt,
	}))
	require.NoError(t, stores.Resets.Replace(ctx, &models.ResetRequest{
		Identifier: "live@example.com",
		RequestID:  "r2",
		Channel:    models.ChannelEmail,
		IssuedAt:   now,
		ExpiresAt:  now.Add(15 * time.Minute),
	}))

	require.NoError(t, a.command().Run(ctx, []string{"fitctl", "purge-resets"}))
	assert.Equal(t, "deleted 1 reset requests\n", out.String())

	live, err := stores.Resets.FindByIdentifier(ctx, "live@example.com")
	require.NoError(t, err)
	assert.NotNil(t, live)
	gone, err := stores.Resets.FindByIdentifier(ctx, "old@example.com")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
