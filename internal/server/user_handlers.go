package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pulseboard/pulseboard/internal/account"
)

// handleListUsers returns all accounts, newest first. Password hashes
// never leave the store.
// GET /users
func (s *Server) handleListUsers(c echo.Context) error {
	users, err := s.users.List(c.Request().Context())
	if err != nil {
		log.Printf("Error listing users: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to list users",
		})
	}
	return c.JSON(http.StatusOK, users)
}

type updateUserRequest struct {
	Role       *string `json:"role"`
	IsApproved *int    `json:"is_approved"`
}

// handleUpdateUser patches an account's role and/or approval state.
// PATCH /users/:id
func (s *Server) handleUpdateUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "User id must be an integer",
		})
	}

	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	if req.Role == nil && req.IsApproved == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "No fields to update",
		})
	}
	if req.Role != nil && *req.Role != account.RoleMember && *req.Role != account.RoleAdmin {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "role must be 'member' or 'admin'",
		})
	}
	if req.IsApproved != nil {
		switch *req.IsApproved {
		case account.ApprovalPending, account.ApprovalApproved, account.ApprovalWithdrawal:
		default:
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error":   "InvalidRequest",
				"message": "is_approved must be 0, 1, or 2",
			})
		}
	}

	updated, err := s.users.Update(c.Request().Context(), id, req.Role, req.IsApproved)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error":   "UserNotFound",
				"message": "No such user",
			})
		}
		log.Printf("Error updating user %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to update user",
		})
	}
	return c.JSON(http.StatusOK, updated)
}

// handleDeleteUser permanently removes an account.
// DELETE /users/:id
func (s *Server) handleDeleteUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "User id must be an integer",
		})
	}

	if err := s.users.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error":   "UserNotFound",
				"message": "No such user",
			})
		}
		log.Printf("Error deleting user %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to delete user",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "User deleted",
	})
}

// handleWithdraw flips the calling account's approval state to
// withdrawal-requested. Admins manage accounts through /users instead.
// POST /users/withdraw
func (s *Server) handleWithdraw(c echo.Context) error {
	claims := getClaims(c)
	if claims.Role == account.RoleAdmin {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error":   "Forbidden",
			"message": "Admin accounts cannot request withdrawal",
		})
	}

	if err := s.users.RequestWithdrawal(c.Request().Context(), claims.UserID); err != nil {
		log.Printf("Error requesting withdrawal for user %d: %v", claims.UserID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to request withdrawal",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Withdrawal requested. An administrator will review it.",
	})
}
