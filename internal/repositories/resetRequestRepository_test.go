package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fitpass/internal/models"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const maxAttempts = 5

func newIssued(identifier, requestID string, issuedAt time.Time) *models.ResetRequest {
	return &models.ResetRequest{
		Identifier: identifier,
		RequestID:  requestID,
		UserID:     primitive.NewObjectID(),
		Channel:    models.ChannelEmail,
		CodeHash:   "code-hash-" + requestID,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(15 * time.Minute),
	}
}

// runResetRequestContract exercises behaviour every ResetRequestRepository must share.
func runResetRequestContract(t *testing.T, newRepo func(t *testing.T) ResetRequestRepository) {
	ctx := context.Background()

	t.Run("find missing returns nil", func(t *testing.T) {
		repo := newRepo(t)
		got, err := repo.FindByIdentifier(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("replace supersedes previous issuance", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("a@example.com", "r1", t0)))
		require.NoError(t, repo.Replace(ctx, newIssued("a@example.com", "r2", t0.Add(time.Minute))))

		got, err := repo.FindByIdentifier(ctx, "a@example.com")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "r2", got.RequestID)
		assert.Equal(t, 0, got.Attempts)

		ok, err := repo.MarkVerified(ctx, "a@example.com", "r1", maxAttempts, t0.Add(2*time.Minute), "tok", t0.Add(12*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok, "a superseded issuance must not verify")
	})

	t.Run("attempts only count for the current issuance", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("b@example.com", "r1", t0)))

		n, ok, err := repo.ReserveAttempt(ctx, "b@example.com", "r1", maxAttempts)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, n)
		n, ok, err = repo.ReserveAttempt(ctx, "b@example.com", "r1", maxAttempts)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, n)
		_, ok, err = repo.ReserveAttempt(ctx, "b@example.com", "stale", maxAttempts)
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = repo.ReserveAttempt(ctx, "nobody@example.com", "r1", maxAttempts)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.FindByIdentifier(ctx, "b@example.com")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Attempts)
	})

	t.Run("reserve stops at the limit", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("lim@example.com", "r1", t0)))
		for i := 1; i <= maxAttempts; i++ {
			n, ok, err := repo.ReserveAttempt(ctx, "lim@example.com", "r1", maxAttempts)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, i, n)
		}

		_, ok, err := repo.ReserveAttempt(ctx, "lim@example.com", "r1", maxAttempts)
		require.NoError(t, err)
		assert.False(t, ok)

		// The last reserved attempt may still verify.
		ok, err = repo.MarkVerified(ctx, "lim@example.com", "r1", maxAttempts, t0.Add(time.Minute), "tok", t0.Add(11*time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		_, ok, err = repo.ReserveAttempt(ctx, "lim@example.com", "r1", maxAttempts+1)
		require.NoError(t, err)
		assert.False(t, ok, "a verified request takes no more attempts")
	})

	t.Run("verify refuses a request past the limit", func(t *testing.T) {
		repo := newRepo(t)
		over := newIssued("over@example.com", "r1", t0)
		over.Attempts = maxAttempts + 1
		require.NoError(t, repo.Replace(ctx, over))

		ok, err := repo.MarkVerified(ctx, "over@example.com", "r1", maxAttempts, t0.Add(time.Minute), "tok", t0.Add(11*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent reservations never exceed the limit", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("race@example.com", "r1", t0)))

		const callers = 50
		var wg sync.WaitGroup
		granted := make(chan int, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, ok, err := repo.ReserveAttempt(ctx, "race@example.com", "r1", maxAttempts)
				assert.NoError(t, err)
				if ok {
					granted <- n
				}
			}()
		}
		wg.Wait()
		close(granted)

		seen := make(map[int]bool)
		for n := range granted {
			assert.False(t, seen[n], "attempt %d granted twice", n)
			seen[n] = true
		}
		assert.Len(t, seen, maxAttempts)

		got, err := repo.FindByIdentifier(ctx, "race@example.com")
		require.NoError(t, err)
		assert.Equal(t, maxAttempts, got.Attempts)
	})

	t.Run("verify is check-and-set", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("c@example.com", "r1", t0)))

		verifiedAt := t0.Add(time.Minute)
		ok, err := repo.MarkVerified(ctx, "c@example.com", "r1", maxAttempts, verifiedAt, "tok-1", verifiedAt.Add(10*time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.MarkVerified(ctx, "c@example.com", "r1", maxAttempts, verifiedAt, "tok-2", verifiedAt.Add(10*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.FindByIdentifier(ctx, "c@example.com")
		require.NoError(t, err)
		assert.Equal(t, "tok-1", got.TokenHash)
		assert.Equal(t, models.ResetVerified, got.State(verifiedAt.Add(time.Minute)))
	})

	t.Run("verify after code expiry fails", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("d@example.com", "r1", t0)))

		late := t0.Add(16 * time.Minute)
		ok, err := repo.MarkVerified(ctx, "d@example.com", "r1", maxAttempts, late, "tok", late.Add(10*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("consume is single use and identifier bound", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("e@example.com", "r1", t0)))
		require.NoError(t, repo.Replace(ctx, newIssued("f@example.com", "r2", t0)))
		verifiedAt := t0.Add(time.Minute)
		_, err := repo.MarkVerified(ctx, "e@example.com", "r1", maxAttempts, verifiedAt, "tok-e", verifiedAt.Add(10*time.Minute))
		require.NoError(t, err)

		got, err := repo.Consume(ctx, "f@example.com", "tok-e", verifiedAt.Add(time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got, "token of e must not consume f")

		got, err = repo.Consume(ctx, "e@example.com", "wrong", verifiedAt.Add(time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = repo.Consume(ctx, "e@example.com", "tok-e", verifiedAt.Add(time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.NotNil(t, got.ConsumedAt)

		got, err = repo.Consume(ctx, "e@example.com", "tok-e", verifiedAt.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got, "second consume must fail")
	})

	t.Run("consume after token expiry fails", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("g@example.com", "r1", t0)))
		verifiedAt := t0.Add(time.Minute)
		_, err := repo.MarkVerified(ctx, "g@example.com", "r1", maxAttempts, verifiedAt, "tok", verifiedAt.Add(10*time.Minute))
		require.NoError(t, err)

		got, err := repo.Consume(ctx, "g@example.com", "tok", verifiedAt.Add(11*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("concurrent verification yields one winner", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Replace(ctx, newIssued("h@example.com", "r1", t0)))

		const callers = 8
		var wg sync.WaitGroup
		results := make(chan bool, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.MarkVerified(ctx, "h@example.com", "r1", maxAttempts, t0.Add(time.Minute), "tok", t0.Add(11*time.Minute))
				assert.NoError(t, err)
				results <- ok
			}()
		}
		wg.Wait()
		close(results)

		winners := 0
		for ok := range results {
			if ok {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("delete dead keeps live rows", func(t *testing.T) {
		repo := newRepo(t)
		// expired long ago
		require.NoError(t, repo.Replace(ctx, newIssued("old@example.com", "r1", t0.Add(-48*time.Hour))))
		// consumed long ago
		consumed := newIssued("used@example.com", "r2", t0.Add(-30*time.Hour))
		require.NoError(t, repo.Replace(ctx, consumed))
		verifiedAt := consumed.IssuedAt.Add(time.Minute)
		_, err := repo.MarkVerified(ctx, "used@example.com", "r2", maxAttempts, verifiedAt, "tok", verifiedAt.Add(10*time.Minute))
		require.NoError(t, err)
		_, err = repo.Consume(ctx, "used@example.com", "tok", verifiedAt.Add(time.Minute))
		require.NoError(t, err)
		// live
		require.NoError(t, repo.Replace(ctx, newIssued("live@example.com", "r3", t0)))

		deleted, err := repo.DeleteDead(ctx, t0.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		got, err := repo.FindByIdentifier(ctx, "live@example.com")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestMemoryResetRequestRepository(t *testing.T) {
	runResetRequestContract(t, func(t *testing.T) ResetRequestRepository {
		return NewMemoryResetRequestRepository()
	})
}

func TestMemoryResetRequestRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryResetRequestRepository()
	require.NoError(t, repo.Replace(ctx, newIssued("copy@example.com", "r1", t0)))

	got, err := repo.FindByIdentifier(ctx, "copy@example.com")
	require.NoError(t, err)
	got.Attempts = 99

	again, err := repo.FindByIdentifier(ctx, "copy@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Attempts)
}

func TestMongoResetRequestRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}
	runResetRequestContract(t, func(t *testing.T) ResetRequestRepository {
		repo, err := NewResetRequestRepository(context.Background(), freshDatabase(t))
		require.NoError(t, err)
		return repo
	})
}
