package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"smart-task-manager/internal/config"
	"smart-task-manager/internal/models"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService interface {
	Signup(db *gorm.DB, name, email, password string) (*models.User, error)
	Login(db *gorm.DB, email, password string) (*models.User, error)
	GetProfile(db *gorm.DB, userID uuid.UUID) (*models.User, error)
	GenerateTokens(db *gorm.DB, userID uuid.UUID) (access string, refresh string, err error)
	RefreshTokens(db *gorm.DB, refreshToken string) (access string, refresh string, err error)
	RevokeToken(db *gorm.DB, refreshToken string) error
}

type AuthServiceImpl struct {
	cfg config.AuthConfig
}

func NewAuthService(cfg config.AuthConfig) *AuthServiceImpl {
	return &AuthServiceImpl{cfg: cfg}
}

func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

// NormalizeEmail is applied on every write and lookup so email uniqueness
// is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthServiceImpl) Signup(db *gorm.DB, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)

	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(name) > 50 {
		return nil, fmt.Errorf("%w: name cannot be more than 50 characters", ErrValidation)
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := HashPassword(password, s.cfg.BCryptCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		ID:       uuid.Must(uuid.NewV4()),
		Name:     name,
		Email:    email,
		Password: hashed,
	}

	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *AuthServiceImpl) Login(db *gorm.DB, email, password string) (*models.User, error) {
	var user models.User
	err := db.Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

func (s *AuthServiceImpl) GetProfile(db *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *AuthServiceImpl) GenerateTokens(db *gorm.DB, userID uuid.UUID) (string, string, error) {
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"iss":     s.cfg.Issuer,
		"exp":     time.Now().Add(s.cfg.AccessTokenTTL).Unix(),
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", "", err
	}

	refreshUUID, err := uuid.NewV4()
	if err != nil {
		return "", "", err
	}

	token := models.Token{
		ID:           uuid.Must(uuid.NewV4()),
		UserID:       userID,
		RefreshToken: refreshUUID,
		ExpiresAt:    time.Now().Add(s.cfg.RefreshTokenTTL),
	}
	if err := db.Create(&token).Error; err != nil {
		return "", "", err
	}

	return accessToken, refreshUUID.String(), nil
}

// RefreshTokens rotates the refresh token: the presented token is deleted
// and a fresh pair is issued, so a stolen token works at most once.
func (s *AuthServiceImpl) RefreshTokens(db *gorm.DB, refreshToken string) (string, string, error) {
	refreshUUID, err := uuid.FromString(refreshToken)
	if err != nil {
		return "", "", ErrInvalidToken
	}

	var token models.Token
	err = db.Where("refresh_token = ? AND expires_at > ?", refreshUUID, time.Now()).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidToken
		}
		return "", "", err
	}

	if err := db.Delete(&token).Error; err != nil {
		return "", "", err
	}

	return s.GenerateTokens(db, token.UserID)
}

func (s *AuthServiceImpl) RevokeToken(db *gorm.DB, refreshToken string) error {
	refreshUUID, err := uuid.FromString(refreshToken)
	if err != nil {
		return ErrInvalidToken
	}

	return db.Where("refresh_token = ?", refreshUUID).Delete(&models.Token{}).Error
}

// PurgeExpiredTokens removes refresh tokens past their expiry. Run
// periodically by the background worker.
func PurgeExpiredTokens(db *gorm.DB) (int64, error) {
	result := db.Where("expires_at <= ?", time.Now()).Delete(&models.Token{})
	return result.RowsAffected, result.Error
}
