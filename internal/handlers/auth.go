package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/fincap/backend/internal/auth"
	"example.com/fincap/backend/internal/ledger"
	"example.com/fincap/backend/internal/models"
	"example.com/fincap/backend/internal/repository"
)

type AuthHandler struct {
	Users        *ledger.Store
	Tokens       *repository.RefreshTokenRepository
	TokenManager *auth.TokenManager
}

// NewAuthHandler создает обработчик авторизации.
func NewAuthHandler(users *ledger.Store, tokens *repository.RefreshTokenRepository, manager *auth.TokenManager) *AuthHandler {
	return &AuthHandler{
		Users:        users,
		Tokens:       tokens,
		TokenManager: manager,
	}
}

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	Name        string `json:"name" validate:"omitempty,max=100"`
	CompanyName string `json:"company_name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthUser struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	CompanyName string    `json:"company_name,omitempty"`
}

type AuthResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         AuthUser `json:"user"`
}

type UserResponse struct {
	User AuthUser `json:"user"`
}

// Register регистрирует пользователя и выдает токены.
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)

	passwordHash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		return serverError(c)
	}

	user, err := h.Users.Register(c.Request().Context(), ledger.RegisterInput{
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName(req.Name, email),
		CompanyName:  strings.TrimSpace(req.CompanyName),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return conflict(c, "user already exists")
		}
		return serverError(c)
	}

	response, err := h.issueTokens(c.Request().Context(), user)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusCreated, response)
}

// Login выполняет вход и выдает токены.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)

	user, err := h.Users.UserByEmail(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return unauthorized(c)
		}
		return serverError(c)
	}

	if err = auth.ComparePassword(user.PasswordHash, password); err != nil {
		return unauthorized(c)
	}

	user, err = h.Users.TouchLogin(c.Request().Context(), user.ID)
	if err != nil {
		return serverError(c)
	}

	response, err := h.issueTokens(c.Request().Context(), user)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, response)
}

// Refresh выдает новую пару токенов и отзывает предъявленный refresh-токен.
// Повторное предъявление уже отозванного токена завершает все сессии пользователя.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}

	ctx := c.Request().Context()
	stored, err := h.verifyRefresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, errRefreshReused) {
			revoked := h.Tokens.RevokeAllForUser(ctx, stored.UserID)
			slog.Warn("refresh token reuse detected", slog.String("user_id", stored.UserID.String()), slog.Int("revoked", revoked))
		}
		if errors.Is(err, errRefreshRejected) || errors.Is(err, errRefreshReused) {
			return unauthorized(c)
		}
		return serverError(c)
	}

	user, err := h.Users.User(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrNoActiveUser) {
			return unauthorized(c)
		}
		return serverError(c)
	}

	newRefreshID := uuid.New()
	pair, err := h.TokenManager.NewTokenPair(user.ID, newRefreshID)
	if err != nil {
		return serverError(c)
	}

	next := models.RefreshToken{
		ID:        newRefreshID,
		UserID:    user.ID,
		TokenHash: auth.HashToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
	}
	if err := h.Tokens.Rotate(ctx, stored.ID, next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return unauthorized(c)
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         toAuthUser(user),
	})
}

var (
	errRefreshRejected = errors.New("refresh token rejected")
	errRefreshReused   = errors.New("refresh token reused")
)

// verifyRefresh сверяет подпись, запись в хранилище и хэш токена.
// При errRefreshReused возвращенная запись содержит владельца токена.
func (h *AuthHandler) verifyRefresh(ctx context.Context, raw string) (models.RefreshToken, error) {
	claims, err := h.TokenManager.ParseRefreshToken(raw)
	if err != nil {
		return models.RefreshToken{}, errRefreshRejected
	}

	refreshID, err := uuid.Parse(claims.ID)
	if err != nil {
		return models.RefreshToken{}, errRefreshRejected
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.RefreshToken{}, errRefreshRejected
	}

	stored, err := h.Tokens.GetByID(ctx, refreshID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.RefreshToken{}, errRefreshRejected
	}
	if err != nil {
		return models.RefreshToken{}, err
	}

	if stored.UserID != userID || !auth.CompareTokenHash(stored.TokenHash, raw) {
		return models.RefreshToken{}, errRefreshRejected
	}
	if stored.RevokedAt != nil {
		return stored, errRefreshReused
	}
	if time.Now().After(stored.ExpiresAt) {
		return models.RefreshToken{}, errRefreshRejected
	}
	return stored, nil
}

// Logout отзывает refresh-токен.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req LogoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}

	claims, err := h.TokenManager.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		return unauthorized(c)
	}

	refreshID, err := uuid.Parse(claims.ID)
	if err != nil {
		return unauthorized(c)
	}

	if err := h.Tokens.Revoke(c.Request().Context(), refreshID, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.NoContent(http.StatusNoContent)
		}
		return serverError(c)
	}

	return c.NoContent(http.StatusNoContent)
}

// Me возвращает данные текущего пользователя.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	user, err := h.Users.User(c.Request().Context(), userID)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(http.StatusOK, UserResponse{User: toAuthUser(user)})
}

func (h *AuthHandler) issueTokens(ctx context.Context, user models.User) (AuthResponse, error) {
	h.Tokens.PurgeExpired(ctx)

	refreshID := uuid.New()
	pair, err := h.TokenManager.NewTokenPair(user.ID, refreshID)
	if err != nil {
		return AuthResponse{}, err
	}

	refreshToken := models.RefreshToken{
		ID:        refreshID,
		UserID:    user.ID,
		TokenHash: auth.HashToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
	}

	if err := h.Tokens.Create(ctx, refreshToken); err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         toAuthUser(user),
	}, nil
}

func toAuthUser(user models.User) AuthUser {
	return AuthUser{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.DisplayName,
		CompanyName: user.CompanyName,
	}
}

// displayName возвращает имя пользователя или локальную часть email.
func displayName(name, email string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}
