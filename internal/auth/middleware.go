package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	ContextUserIDKey = "user_id"
	// QueryTokenParam принимает только stream-тикет: EventSource не умеет передавать заголовки.
	QueryTokenParam = "ticket"
)

// JWTMiddleware проверяет access-токен из заголовка Authorization и сохраняет user_id в контексте.
func JWTMiddleware(manager *TokenManager) echo.MiddlewareFunc {
	return authenticate(func(c echo.Context) (*Claims, error) {
		token, err := bearerToken(c)
		if err != nil {
			return nil, err
		}
		return manager.ParseAccessToken(token)
	})
}

// StreamMiddleware принимает access-токен из заголовка либо stream-тикет из query.
func StreamMiddleware(manager *TokenManager) echo.MiddlewareFunc {
	return authenticate(func(c echo.Context) (*Claims, error) {
		if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
			if ticket := strings.TrimSpace(c.QueryParam(QueryTokenParam)); ticket != "" {
				return manager.ParseStreamTicket(ticket)
			}
		}
		token, err := bearerToken(c)
		if err != nil {
			return nil, err
		}
		return manager.ParseAccessToken(token)
	})
}

func authenticate(claimsFrom func(echo.Context) (*Claims, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := claimsFrom(c)
			if err != nil {
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					return httpErr
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			userID, err := claims.UserID()
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			c.Set(ContextUserIDKey, userID)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return token, nil
}

// UserIDFromContext извлекает идентификатор пользователя из контекста.
func UserIDFromContext(c echo.Context) (uuid.UUID, bool) {
	value := c.Get(ContextUserIDKey)
	userID, ok := value.(uuid.UUID)
	return userID, ok
}
