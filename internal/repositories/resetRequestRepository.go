package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fitpass/internal/metrics"
	"fitpass/internal/models"
)

// ResetRequestRepository stores at most one reset request per identifier.
// Verification and consumption are compare-and-set operations so concurrent
// callers cannot both succeed.
type ResetRequestRepository interface {
	// Replace atomically supersedes any existing request for req.Identifier.
	Replace(ctx context.Context, req *models.ResetRequest) error
	// FindByIdentifier returns nil, nil when no request exists.
	FindByIdentifier(ctx context.Context, identifier string) (*models.ResetRequest, error)
	// ReserveAttempt counts one code submission against the given issuance
	// while it is open and below maxAttempts. It returns the new attempt count,
	// or ok=false when no attempt could be reserved.
	ReserveAttempt(ctx context.Context, identifier, requestID string, maxAttempts int) (attempts int, ok bool, err error)
	// MarkVerified attaches the reset token if the request is still the given
	// issuance, unverified, unconsumed, unexpired at verifiedAt and has not
	// gone past maxAttempts.
	MarkVerified(ctx context.Context, identifier, requestID string, maxAttempts int, verifiedAt time.Time, tokenHash string, tokenExpiresAt time.Time) (bool, error)
	// Consume marks the verified request spent if tokenHash matches and the
	// token is unexpired at now. It returns nil when nothing matched.
	Consume(ctx context.Context, identifier, tokenHash string, now time.Time) (*models.ResetRequest, error)
	// DeleteDead removes requests that were consumed or fully expired before the cutoff.
	DeleteDead(ctx context.Context, before time.Time) (int64, error)
}

const resetRequestCollection = "password_resets"

type resetRequestRepository struct {
	collection *mongo.Collection
}

func NewResetRequestRepository(ctx context.Context, db *mongo.Database) (ResetRequestRepository, error) {
	collection := db.Collection(resetRequestCollection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create reset request indexes: %w", err)
	}
	return &resetRequestRepository{collection: collection}, nil
}

func (r *resetRequestRepository) Replace(ctx context.Context, req *models.ResetRequest) (err error) {
	done := metrics.ObserveQuery("replace", "reset_request")
	defer func() { done(err) }()

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": req.Identifier}
	_, err = r.collection.ReplaceOne(ctx, filter, req, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced on insert; the loser retries as a plain replace.
		_, err = r.collection.ReplaceOne(ctx, filter, req, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to store reset request: %w", err)
	}
	return nil
}

func (r *resetRequestRepository) FindByIdentifier(ctx context.Context, identifier string) (req *models.ResetRequest, err error) {
	done := metrics.ObserveQuery("findByIdentifier", "reset_request")
	defer func() { done(err) }()

	var out models.ResetRequest
	if err = r.collection.FindOne(ctx, bson.M{"_id": identifier}).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find reset request: %w", err)
	}
	return &out, nil
}

func (r *resetRequestRepository) ReserveAttempt(ctx context.Context, identifier, requestID string, maxAttempts int) (attempts int, ok bool, err error) {
	done := metrics.ObserveQuery("reserveAttempt", "reset_request")
	defer func() { done(err) }()

	filter := bson.M{
		"_id":         identifier,
		"request_id":  requestID,
		"attempts":    bson.M{"$lt": maxAttempts},
		"verified_at": bson.M{"$exists": false},
		"consumed_at": bson.M{"$exists": false},
	}
	update := bson.M{"$inc": bson.M{"attempts": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.ResetRequest
	if err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to record attempt: %w", err)
	}
	return out.Attempts, true, nil
}

func (r *resetRequestRepository) MarkVerified(ctx context.Context, identifier, requestID string, maxAttempts int, verifiedAt time.Time, tokenHash string, tokenExpiresAt time.Time) (ok bool, err error) {
	done := metrics.ObserveQuery("markVerified", "reset_request")
	defer func() { done(err) }()

	filter := bson.M{
		"_id":         identifier,
		"request_id":  requestID,
		"attempts":    bson.M{"$lte": maxAttempts},
		"verified_at": bson.M{"$exists": false},
		"consumed_at": bson.M{"$exists": false},
		"expires_at":  bson.M{"$gte": verifiedAt},
	}
	update := bson.M{"$set": bson.M{
		"verified_at":      verifiedAt,
		"token_hash":       tokenHash,
		"token_expires_at": tokenExpiresAt,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark reset request verified: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *resetRequestRepository) Consume(ctx context.Context, identifier, tokenHash string, now time.Time) (req *models.ResetRequest, err error) {
	done := metrics.ObserveQuery("consume", "reset_request")
	defer func() { done(err) }()

	filter := bson.M{
		"_id":              identifier,
		"token_hash":       tokenHash,
		"consumed_at":      bson.M{"$exists": false},
		"token_expires_at": bson.M{"$gte": now},
	}
	update := bson.M{"$set": bson.M{"consumed_at": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.ResetRequest
	if err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to consume reset request: %w", err)
	}
	return &out, nil
}

func (r *resetRequestRepository) DeleteDead(ctx context.Context, before time.Time) (deleted int64, err error) {
	done := metrics.ObserveQuery("deleteDead", "reset_request")
	defer func() { done(err) }()

	filter := bson.M{"$or": bson.A{
		bson.M{"consumed_at": bson.M{"$lt": before}},
		bson.M{
			"consumed_at":      bson.M{"$exists": false},
			"expires_at":       bson.M{"$lt": before},
			"token_expires_at": bson.M{"$exists": false},
		},
		bson.M{
			"consumed_at":      bson.M{"$exists": false},
			"expires_at":       bson.M{"$lt": before},
			"token_expires_at": bson.M{"$lt": before},
		},
	}}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete dead reset requests: %w", err)
	}
	return result.DeletedCount, nil
}
