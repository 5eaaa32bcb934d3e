package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"soul-card-backend/internal/apperr"
	"soul-card-backend/internal/models"
	"soul-card-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	shareCodeLength = 8
	shareCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordCost    = 12
)

var (
	ErrEmailTaken         = apperr.Conflict("this email is already registered")
	ErrInvalidCredentials = apperr.Unauthorized("invalid email or password")
	ErrInvalidToken       = apperr.Unauthorized("your session has expired, please sign in again")
)

// Claims is the JWT payload of a session token
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// RegisterInput is the sign-up form
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginInput is the sign-in form
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned after sign-up and sign-in
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// UserService handles accounts and session tokens
type UserService struct {
	repos      Repos
	inTx       TxFunc
	jwtSecret  []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        Clock
}

// NewUserService creates a new user service
func NewUserService(repos Repos, inTx TxFunc, jwtSecret string, tokenTTL time.Duration) *UserService {
	return &UserService{
		repos:      repos,
		inTx:       inTx,
		jwtSecret:  []byte(jwtSecret),
		tokenTTL:   tokenTTL,
		bcryptCost: passwordCost,
		now:        utcNow,
	}
}

// Register creates a user together with its default card and signs them in
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = models.NormalizeContact(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}

	err = s.inTx(ctx, func(r Repos) error {
		exists, err := r.Users.EmailExists(ctx, user.Email)
		if err != nil {
			return err
		}
		if exists {
			return ErrEmailTaken
		}

		code, err := GenerateUniqueShareCode(ctx, r.Profiles)
		if err != nil {
			return err
		}

		if err := r.Users.Create(ctx, user); err != nil {
			return err
		}
		profile := models.NewDefaultProfile(uuid.New().String(), user.ID, user.Name, code, now)
		return r.Profiles.Create(ctx, profile)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID).Msg("User registered")
	return &AuthResult{User: user, Token: token}, nil
}

// Login checks credentials and issues a session token
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = models.NormalizeContact(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUser returns the account of userID
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// UpdatePushToken stores the device token for push notifications.
// An empty token clears it.
func (s *UserService) UpdatePushToken(ctx context.Context, userID, pushToken string) error {
	var token *string
	if t := strings.TrimSpace(pushToken); t != "" {
		token = &t
	}
	if err := s.repos.Users.UpdatePushToken(ctx, userID, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return err
	}
	return nil
}

// GenerateJWT generates a session token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates a session token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindUnauthorized, ErrInvalidToken.Msg)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// ShareCodeChecker reports whether a share code is taken
type ShareCodeChecker interface {
	ShareCodeExists(ctx context.Context, code string) (bool, error)
}

// GenerateUniqueShareCode generates a share code not used by any card
func GenerateUniqueShareCode(ctx context.Context, checker ShareCodeChecker) (string, error) {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		code := generateCode()
		exists, err := checker.ShareCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check share code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique share code after %d attempts", maxAttempts)
}

// generateCode generates a random share code
func generateCode() string {
	code := make([]byte, shareCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(shareCodeChars))))
		code[i] = shareCodeChars[n.Int64()]
	}
	return string(code)
}
