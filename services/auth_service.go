package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	SessionTTL             = 24 * time.Hour
	generatedPasswordChars = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	generatedPasswordLen   = 12
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// IdentityProvider is the authentication collaborator used by the lifecycle manager.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password, role string) (string, error)
	DeleteIdentity(ctx context.Context, id string) error
	ResetPassword(ctx context.Context, id, password string) error
}

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"user_role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService stores identities in users/{userId} and issues JWT sessions.
type AuthService struct {
	db     *gorm.DB
	secret []byte
}

func NewAuthService(db *gorm.DB, secret []byte) *AuthService {
	return &AuthService{db: db, secret: secret}
}

// CreateIdentity returns the new identity's stable id. Restaurant owners get
// their restaurant id pointing at that same id.
func (s *AuthService) CreateIdentity(ctx context.Context, email, password, role string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", newError(ErrInvalidInput, "email and password are required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return "", err
	}
	if count > 0 {
		return "", ErrAccountExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	user := models.User{
		ID:       id,
		Email:    email,
		Password: string(hashed),
		Role:     role,
	}
	if role == models.RoleRestaurantOwner {
		restaurantID := id
		user.RestaurantID = &restaurantID
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrAccountExists
		}
		return "", err
	}

	utils.InfoLogger.Printf("Identity created: %s (role=%s)", user.Email, user.Role)
	return user.ID, nil
}

func (s *AuthService) DeleteIdentity(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id).Error
}

func (s *AuthService) ResetPassword(ctx context.Context, id, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password", string(hashed))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return newError(ErrNotFound, "identity not found")
	}
	return nil
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(s.secret, user.ID, user.Role, SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	return &Session{
		Token:     token,
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: time.Now().Add(SessionTTL),
	}, nil
}

// SignOut revokes the token for the rest of its lifetime.
func (s *AuthService) SignOut(token string) error {
	claims, err := s.ParseSession(token)
	if err != nil {
		return err
	}
	utils.BlacklistToken(token, claims.ExpiresAt.Time)
	return nil
}

func (s *AuthService) ParseSession(token string) (*utils.CustomClaims, error) {
	return utils.ParseToken(s.secret, token)
}

func (s *AuthService) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GeneratePassword returns a random password for a new owner account.
func GeneratePassword() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(generatedPasswordChars)))
	for i := 0; i < generatedPasswordLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(generatedPasswordChars[n.Int64()])
	}
	return b.String(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
