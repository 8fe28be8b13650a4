package handlers

import (
	"errors"
	"net/http"

	"smart-task-manager/internal/middleware"
	"smart-task-manager/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UserHandler struct {
	db          *gorm.DB
	authService services.AuthService
	logger      *zap.Logger
}

func NewUserHandler(db *gorm.DB, authService services.AuthService, logger *zap.Logger) *UserHandler {
	return &UserHandler{db: db, authService: authService, logger: logger}
}

func (h *UserHandler) Profile(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Not authorized",
		})
		return
	}

	user, err := h.authService.GetProfile(h.db, userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Not authorized, user no longer exists",
			})
			return
		}
		h.logger.Error("profile lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to load profile",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    user.Profile(),
	})
}
