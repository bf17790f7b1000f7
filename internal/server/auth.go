package server

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// UserRepository — доступ к учеткам операторов консоли
type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// AuthService проверяет креды оператора и выпускает RS256 токены
type AuthService struct {
	repo       UserRepository
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
	logger     *zap.Logger
}

func NewAuthService(repo UserRepository, privateKey *rsa.PrivateKey, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		repo:       repo,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
		logger:     logger.Named("auth_service"),
	}
}

// Login сверяет пароль с bcrypt-хешем и подписывает токен приватным ключом.
// Ошибку "кто именно не прошел" наружу не отдаем — только generic invalid credentials
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error) {
	user, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("username", req.Username), zap.Error(err))
		return nil, fmt.Errorf("auth backend unavailable")
	}
	if user == nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	now := time.Now()
	claims := domain.CustomClaims{
		UserID: user.ID,
		Scopes: user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		s.logger.Error("token signing failed", zap.Error(err))
		return nil, fmt.Errorf("token signing failed")
	}

	s.logger.Info("operator logged in", zap.String("username", user.Username))

	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
	}, nil
}

// AuthHandler — HTTP-обертка над AuthService
type AuthHandler struct {
	service *AuthService
	logger  *zap.Logger
}

func NewAuthHandler(service *AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger.Named("auth_handler")}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
