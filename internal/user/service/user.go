package service

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/user/biz"
	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/response"
)

type UserService struct {
	uc     *biz.UserUseCase
	logger *logger.Logger
}

func NewUserService(uc *biz.UserUseCase, log *logger.Logger) *UserService {
	return &UserService{
		uc:     uc,
		logger: log,
	}
}

type UserResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Namespace   string     `json:"storage_namespace"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GetMe 当前用户信息
// @Summary 当前用户
// @Tags users
// @Produce json
// @Success 200 {object} UserResponse
// @Router /api/v1/users/me [get]
func (s *UserService) GetMe(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.Unauthorized(c, "user not authenticated")
		return
	}

	profile, err := s.uc.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, biz.ErrUserNotFound) {
			response.ErrorWithCode(c, apperrors.ErrUserNotFound)
			return
		}
		s.logger.Error("failed to get user profile", zap.String("user_id", userID), zap.Error(err))
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrInternalServer))
		return
	}

	response.Success(c, &UserResponse{
		ID:          profile.ID,
		Name:        profile.Name,
		Email:       profile.Email,
		Namespace:   profile.Namespace,
		LastLoginAt: profile.LastLoginAt,
		CreatedAt:   profile.CreatedAt,
	})
}

func (s *UserService) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/me", s.GetMe)
	}
}
