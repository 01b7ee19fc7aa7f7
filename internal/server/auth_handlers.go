package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pulseboard/pulseboard/internal/account"
	"github.com/pulseboard/pulseboard/internal/auth"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRegister creates a new pending account.
// POST /register
func (s *Server) handleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "username and password are required",
		})
	}

	_, err := s.gate.Register(c.Request().Context(), req.Username, req.Password, c.RealIP())
	if err != nil {
		switch {
		case errors.Is(err, account.ErrThrottled):
			return s.throttled(c)
		case errors.Is(err, account.ErrUsernameTaken):
			return c.JSON(http.StatusConflict, map[string]string{
				"error":   "UsernameTaken",
				"message": "That username already exists",
			})
		default:
			log.Printf("Error registering %q: %v", req.Username, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error":   "InternalError",
				"message": "Registration failed",
			})
		}
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"message": "Registration received. An administrator must approve the account.",
	})
}

// handleLogin verifies credentials and issues a bearer token, returned
// in the body and as an http-only cookie.
// POST /login
func (s *Server) handleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "username and password are required",
		})
	}

	acct, err := s.gate.Login(c.Request().Context(), req.Username, req.Password, c.RealIP())
	if err != nil {
		switch {
		case errors.Is(err, account.ErrThrottled):
			return s.throttled(c)
		case errors.Is(err, account.ErrInvalidCredentials):
			// Identical response whether the account is absent or the
			// password is wrong.
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   "InvalidCredentials",
				"message": "Invalid username or password",
			})
		case errors.Is(err, account.ErrPendingApproval):
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":   "PendingApproval",
				"message": "This account is awaiting administrator approval",
			})
		default:
			log.Printf("Error logging in %q: %v", req.Username, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error":   "InternalError",
				"message": "Login failed",
			})
		}
	}

	token, err := s.tokens.CreateToken(acct.ID, acct.Username, acct.Role)
	if err != nil {
		log.Printf("Error creating token for %q: %v", acct.Username, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Login failed",
		})
	}

	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Login successful",
		"token":   token,
	})
}

// throttled writes the 429 response with a retry hint derived from the
// configured window.
func (s *Server) throttled(c echo.Context) error {
	c.Response().Header().Set("Retry-After",
		strconv.Itoa(int(s.cfg.ThrottleWindow().Seconds())))
	return c.JSON(http.StatusTooManyRequests, map[string]string{
		"error":   "TooManyRequests",
		"message": "Too many attempts. Try again later.",
	})
}
