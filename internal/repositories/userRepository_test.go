package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fitpass/internal/models"
)

func TestUserRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}

	ctx := context.Background()
	userRepo, err := NewUserRepository(ctx, freshDatabase(t))
	require.NoError(t, err)

	t.Run("Create and Get User", func(t *testing.T) {
		user := &models.User{
			Username: "testuser",
			Email:    "test@example.com",
			Phone:    "+15555550100",
			Password: "hash",
			Role:     models.RoleTrainer,
			Active:   true,
		}

		createdUser, err := userRepo.Create(ctx, user)
		require.NoError(t, err)
		assert.False(t, createdUser.ID.IsZero())

		foundUser, err := userRepo.FindByID(ctx, createdUser.ID)
		require.NoError(t, err)
		assert.Equal(t, "testuser", foundUser.Username)
		assert.Equal(t, models.RoleTrainer, foundUser.Role)

		byEmail, err := userRepo.FindByEmail(ctx, "test@example.com")
		require.NoError(t, err)
		assert.Equal(t, createdUser.ID, byEmail.ID)

		byPhone, err := userRepo.FindByPhone(ctx, "+15555550100")
		require.NoError(t, err)
		assert.Equal(t, createdUser.ID, byPhone.ID)
	})

	t.Run("Duplicate email", func(t *testing.T) {
		_, err := userRepo.Create(ctx, &models.User{Username: "dup", Email: "test@example.com"})
		assert.ErrorIs(t, err, ErrDuplicateUser)
	})

	t.Run("Users without phone do not collide", func(t *testing.T) {
		_, err := userRepo.Create(ctx, &models.User{Username: "a", Email: "a@example.com"})
		require.NoError(t, err)
		_, err = userRepo.Create(ctx, &models.User{Username: "b", Email: "b@example.com"})
		require.NoError(t, err)
	})

	t.Run("Missing user", func(t *testing.T) {
		_, err := userRepo.FindByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)

		err = userRepo.UpdatePassword(ctx, primitive.NewObjectID(), "hash")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("UpdatePassword bumps session version", func(t *testing.T) {
		user, err := userRepo.FindByEmail(ctx, "test@example.com")
		require.NoError(t, err)
		before := user.SessionVersion

		require.NoError(t, userRepo.UpdatePassword(ctx, user.ID, "new-hash"))

		after, err := userRepo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", after.Password)
		assert.Equal(t, before+1, after.SessionVersion)
	})

	t.Run("Update profile", func(t *testing.T) {
		user, err := userRepo.FindByEmail(ctx, "test@example.com")
		require.NoError(t, err)

		require.NoError(t, userRepo.Update(ctx, user.ID, bson.M{"username": "renamed"}))

		after, err := userRepo.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", after.Username)
	})

	t.Run("CountAll", func(t *testing.T) {
		count, err := userRepo.CountAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}
