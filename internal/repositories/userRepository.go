package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fitpass/internal/metrics"
	"fitpass/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("email or phone already registered")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	Update(ctx context.Context, userID primitive.ObjectID, updateFields bson.M) error
	// UpdatePassword stores a new hash and bumps session_version so tokens
	// issued before the change stop validating.
	UpdatePassword(ctx context.Context, userID primitive.ObjectID, passwordHash string) error
	CountAll(ctx context.Context) (int64, error)
}

type userRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(ctx context.Context, db *mongo.Database) (UserRepository, error) {
	r := &userRepository{collection: db.Collection("users")}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *userRepository) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"phone": bson.M{"$type": "string"}}),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (created *models.User, err error) {
	done := metrics.ObserveQuery("create", "user")
	defer func() { done(err) }()

	now := time.Now().UTC()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err = r.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateUser
		}
		log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Failed to insert user into database")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (r *userRepository) findOne(ctx context.Context, queryType string, filter bson.M) (user *models.User, err error) {
	done := metrics.ObserveQuery(queryType, "user")
	defer func() {
		if errors.Is(err, ErrUserNotFound) {
			done(nil)
			return
		}
		done(err)
	}()

	var u models.User
	if err = r.collection.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "findByEmail", bson.M{"email": email})
}

func (r *userRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.findOne(ctx, "findByPhone", bson.M{"phone": phone})
}

func (r *userRepository) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, "findById", bson.M{"_id": userID})
}

func (r *userRepository) Update(ctx context.Context, userID primitive.ObjectID, updateFields bson.M) (err error) {
	done := metrics.ObserveQuery("update", "user")
	defer func() { done(err) }()

	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range updateFields {
		set[k] = v
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Error updating user profile")
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID primitive.ObjectID, passwordHash string) (err error) {
	done := metrics.ObserveQuery("updatePassword", "user")
	defer func() { done(err) }()

	update := bson.M{
		"$set": bson.M{"password": passwordHash, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"session_version": 1},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Error updating user password")
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) CountAll(ctx context.Context) (count int64, err error) {
	done := metrics.ObserveQuery("countAll", "user")
	defer func() { done(err) }()

	count, err = r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to count total users")
		return 0, fmt.Errorf("failed to count total users: %w", err)
	}
	return count, nil
}
