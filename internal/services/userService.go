package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fitpass/internal/metrics"
	"fitpass/internal/models"
	"fitpass/internal/repositories"
	"fitpass/internal/utils"
)

// UserService defines the interface for user-related business logic.
type UserService interface {
	RegisterUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	LoginUser(ctx context.Context, creds *models.Login) (string, error)
	GetUserProfile(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	UpdateUserProfile(ctx context.Context, userID primitive.ObjectID, updatePayload *models.UserProfileUpdate) (*models.User, error)
	GetTotalUsers(ctx context.Context) (int64, error)
	RefreshTotalUsers(ctx context.Context)
}

type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

// userService implements UserService using a UserRepository.
type userService struct {
	userRepo          repositories.UserRepository
	hasher            *utils.Hasher
	tokens            TokenConfig
	minPasswordLength int
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repositories.UserRepository, hasher *utils.Hasher, tokens TokenConfig, minPasswordLength int) UserService {
	return &userService{
		userRepo:          userRepo,
		hasher:            hasher,
		tokens:            tokens,
		minPasswordLength: minPasswordLength,
	}
}

func (s *userService) GetTotalUsers(ctx context.Context) (int64, error) {
	return s.userRepo.CountAll(ctx)
}

// RefreshTotalUsers sets the total users gauge. It runs on the scheduler.
func (s *userService) RefreshTotalUsers(ctx context.Context) {
	count, err := s.GetTotalUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error updating total users gauge")
		return
	}
	metrics.TotalUsers.Set(float64(count))
}

func (s *userService) RegisterUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	var verrs models.ValidationErrors

	email, err := utils.NormalizeEmail(req.Email)
	if err != nil {
		verrs = append(verrs, models.FieldError{Field: "email", Message: err.Error(), Err: err})
	}
	var phone string
	if strings.TrimSpace(req.Phone) != "" {
		if phone, err = utils.NormalizePhone(req.Phone); err != nil {
			verrs = append(verrs, models.FieldError{Field: "phone", Message: err.Error(), Err: err})
		}
	}
	verrs = append(verrs, passwordPolicy(req.Password, s.minPasswordLength)...)
	if len(verrs) > 0 {
		return nil, verrs
	}

	log.Debug().Str("email", utils.MaskIdentifier(email)).Msg("Attempting to register user")
	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password during registration")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    email,
		Phone:    phone,
		Password: hashedPassword,
		Role:     models.RoleClient,
		Active:   true,
	}
	createdUser, err := s.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateUser) {
			log.Warn().Str("email", utils.MaskIdentifier(email)).Msg("Email or phone already registered")
			return nil, ErrAccountExists
		}
		return nil, err
	}

	createdUser.Password = "" // Clear password before returning
	metrics.NewUsersTotal.Inc()
	log.Info().Str("user_id", createdUser.ID.Hex()).Msg("User registered successfully")
	s.RefreshTotalUsers(ctx)
	return createdUser, nil
}

func (s *userService) LoginUser(ctx context.Context, creds *models.Login) (string, error) {
	identifier, channel, err := utils.NormalizeIdentifier(creds.Identifier, "")
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("failed").Inc()
		return "", ErrInvalidCredentials
	}
	masked := utils.MaskIdentifier(identifier)
	log.Debug().Str("identifier", masked).Msg("Attempting user login")

	var user *models.User
	if channel == models.ChannelPhone {
		user, err = s.userRepo.FindByPhone(ctx, identifier)
	} else {
		user, err = s.userRepo.FindByEmail(ctx, identifier)
	}
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, repositories.ErrUserNotFound) {
			log.Warn().Str("identifier", masked).Msg("Invalid credentials during login attempt")
			return "", ErrInvalidCredentials
		}
		log.Error().Err(err).Str("identifier", masked).Msg("Error finding user for login")
		return "", err
	}

	if user.Password == "" || s.hasher.Compare(user.Password, creds.Password) != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("failed").Inc()
		log.Warn().Str("identifier", masked).Msg("Invalid credentials (password mismatch) during login attempt")
		return "", ErrInvalidCredentials
	}
	if !user.Active {
		metrics.LoginAttemptsTotal.WithLabelValues("failed").Inc()
		log.Warn().Str("user_id", user.ID.Hex()).Msg("Login attempt on disabled account")
		return "", ErrAccountDisabled
	}

	token, err := utils.GenerateJWT(s.tokens.Secret, user, s.tokens.TTL)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Could not generate token for user")
		return "", fmt.Errorf("could not generate token: %w", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	log.Info().Str("user_id", user.ID.Hex()).Msg("User logged in successfully")
	return token, nil
}

func (s *userService) GetUserProfile(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	log.Debug().Str("user_id", userID.Hex()).Msg("Attempting to retrieve user profile")
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Failed to fetch user profile")
		}
		return nil, err
	}

	user.Password = "" // Clear password before returning
	return user, nil
}

func (s *userService) UpdateUserProfile(ctx context.Context, userID primitive.ObjectID, updatePayload *models.UserProfileUpdate) (*models.User, error) {
	updateFields := bson.M{}
	if name := strings.TrimSpace(updatePayload.Username); name != "" {
		updateFields["username"] = name
	}
	if len(updateFields) == 0 {
		log.Warn().Str("user_id", userID.Hex()).Msg("No valid fields provided for user profile update")
		return nil, ErrNoProfileChanges
	}

	if err := s.userRepo.Update(ctx, userID, updateFields); err != nil {
		return nil, err
	}

	updatedUser, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Error fetching updated user profile")
		return nil, fmt.Errorf("failed to retrieve updated user profile: %w", err)
	}
	updatedUser.Password = ""

	log.Info().Str("user_id", userID.Hex()).Msg("User profile updated successfully")
	return updatedUser, nil
}
