package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"kedai/internal/models"
	"kedai/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSignupDisabled is returned when staff self-registration is turned off.
	ErrSignupDisabled = errors.New("staff registration is disabled")
)

// AuthService handles authentication of outlet staff.
type AuthService struct {
	staffRepo     repositories.StaffRepository
	jwtSecret     []byte
	tokenDuration time.Duration
	allowSignup   bool
}

// NewAuthService creates a new AuthService.
func NewAuthService(staffRepo repositories.StaffRepository, jwtSecret string, allowSignup bool) *AuthService {
	return &AuthService{
		staffRepo:     staffRepo,
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 12 * time.Hour, // one shift
		allowSignup:   allowSignup,
	}
}

// RegisterStaff hashes the password and saves a new staff account.
func (s *AuthService) RegisterStaff(ctx context.Context, staff *models.Staff) error {
	if !s.allowSignup {
		return ErrSignupDisabled
	}
	if existing, err := s.staffRepo.GetByUsername(ctx, staff.Username); err == nil && existing != nil {
		return fmt.Errorf("username '%s' already taken", staff.Username)
	}
	if existing, err := s.staffRepo.GetByEmail(ctx, staff.Email); err == nil && existing != nil {
		return fmt.Errorf("email '%s' already registered", staff.Email)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(staff.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	staff.Password = string(hashedPassword)

	if err := s.staffRepo.Create(ctx, staff); err != nil {
		return fmt.Errorf("failed to register staff: %w", err)
	}
	return nil
}

// Login authenticates a staff member and returns a signed JWT.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	staff, err := s.staffRepo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repositories.ErrStaffNotFound) {
			log.Printf("Error loading staff %s: %v", username, err)
		}
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"staff_id":  staff.ID,
		"username":  staff.Username,
		"outlet_id": staff.OutletID,
		"exp":       now.Add(s.tokenDuration).Unix(),
		"iat":       now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
