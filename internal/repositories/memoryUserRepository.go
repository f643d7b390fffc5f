package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fitpass/internal/models"
)

// MemoryUserRepository is the process-local user directory used with
// STORE_DRIVER=memory. Only the fields exposed by UserProfileUpdate can be
// changed through Update.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[primitive.ObjectID]models.User)}
}

func (m *MemoryUserRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email || (user.Phone != "" && u.Phone == user.Phone) {
			return nil, ErrDuplicateUser
		}
	}
	now := time.Now().UTC()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = *user
	return user, nil
}

func (m *MemoryUserRepository) find(match func(models.User) bool) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.Email == email })
}

func (m *MemoryUserRepository) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.Phone != "" && u.Phone == phone })
}

func (m *MemoryUserRepository) FindByID(_ context.Context, userID primitive.ObjectID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryUserRepository) Update(_ context.Context, userID primitive.ObjectID, updateFields bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	for k, v := range updateFields {
		switch k {
		case "username":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("username must be a string, got %T", v)
			}
			u.Username = s
		case "active":
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("active must be a bool, got %T", v)
			}
			u.Active = b
		case "role":
			r, ok := v.(models.Role)
			if !ok {
				return fmt.Errorf("role must be a models.Role, got %T", v)
			}
			u.Role = r
		default:
			return fmt.Errorf("field %q cannot be updated", k)
		}
	}
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

func (m *MemoryUserRepository) UpdatePassword(_ context.Context, userID primitive.ObjectID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Password = passwordHash
	u.SessionVersion++
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

func (m *MemoryUserRepository) CountAll(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}
