package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kedai/internal/models"

	"github.com/google/uuid"
)

// MockStaffRepository is an in-memory implementation of StaffRepository.
type MockStaffRepository struct {
	staff map[string]models.Staff
	mu    sync.RWMutex
}

// NewMockStaffRepository creates a new instance of MockStaffRepository.
func NewMockStaffRepository() *MockStaffRepository {
	return &MockStaffRepository{
		staff: make(map[string]models.Staff),
	}
}

// Create adds a staff account.
func (r *MockStaffRepository) Create(_ context.Context, staff *models.Staff) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if staff.ID == "" {
		staff.ID = uuid.New().String()
	}
	staff.CreatedAt = time.Now()
	staff.UpdatedAt = staff.CreatedAt
	r.staff[staff.ID] = *staff
	return nil
}

// GetByUsername returns the account with the given username.
func (r *MockStaffRepository) GetByUsername(_ context.Context, username string) (*models.Staff, error) {
	return r.find(func(s models.Staff) bool { return s.Username == username }, "username", username)
}

// GetByEmail returns the account with the given email.
func (r *MockStaffRepository) GetByEmail(_ context.Context, email string) (*models.Staff, error) {
	return r.find(func(s models.Staff) bool { return s.Email == email }, "email", email)
}

// GetByID returns the account with the given ID.
func (r *MockStaffRepository) GetByID(_ context.Context, id string) (*models.Staff, error) {
	return r.find(func(s models.Staff) bool { return s.ID == id }, "id", id)
}

func (r *MockStaffRepository) find(match func(models.Staff) bool, field, value string) (*models.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.staff {
		if match(s) {
			found := s
			return &found, nil
		}
	}
	return nil, fmt.Errorf("staff with %s %s: %w", field, value, ErrStaffNotFound)
}
