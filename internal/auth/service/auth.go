package service

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/auth/biz"
	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/response"
)

// AuthService 认证服务
type AuthService struct {
	authUC *biz.AuthUseCase
	logger *logger.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(authUC *biz.AuthUseCase, log *logger.Logger) *AuthService {
	return &AuthService{
		authUC: authUC,
		logger: log,
	}
}

// RegisterRoutes 注册认证路由，loginLimit/registerLimit 为各自的限流中间件
func (s *AuthService) RegisterRoutes(r *gin.RouterGroup, loginLimit, registerLimit gin.HandlerFunc) {
	g := r.Group("/auth")
	{
		g.POST("/register", registerLimit, s.Register)
		g.POST("/login", loginLimit, s.Login)
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Register 用户注册
// @Summary 用户注册
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "注册信息"
// @Success 201 {object} RegisterResponse
// @Router /api/v1/auth/register [post]
func (s *AuthService) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := s.authUC.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, biz.ErrEmailAlreadyExists):
			response.ErrorWithCode(c, apperrors.ErrAuthEmailExists)
		case errors.Is(err, biz.ErrNamespaceTaken):
			response.ErrorWithCode(c, apperrors.ErrAuthNamespaceTaken)
		case errors.Is(err, biz.ErrInvalidEmail):
			response.ErrorWithCode(c, apperrors.ErrAuthInvalidEmail, err.Error())
		default:
			s.logger.Error("failed to register user", zap.Error(err))
			response.HandleError(c, apperrors.Wrap(err, apperrors.ErrInternalServer))
		}
		return
	}

	response.Created(c, &RegisterResponse{
		UserID: user.ID,
		Email:  user.Email,
	})
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login 用户登录
// @Summary 用户登录
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录信息"
// @Success 200 {object} biz.LoginResult
// @Router /api/v1/auth/login [post]
func (s *AuthService) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ip := c.ClientIP()
	result, err := s.authUC.Login(c.Request.Context(), req.Email, req.Password, ip)
	if err != nil {
		s.logger.Warn("login failed", zap.Error(err), zap.String("ip", ip))

		switch {
		case errors.Is(err, biz.ErrInvalidCredentials):
			response.ErrorWithCode(c, apperrors.ErrAuthInvalidCredentials)
		case errors.Is(err, biz.ErrAccountLocked):
			response.ErrorWithCode(c, apperrors.ErrForbidden, "account locked, retry in 15 minutes")
		default:
			response.HandleError(c, apperrors.Wrap(err, apperrors.ErrInternalServer))
		}
		return
	}

	response.Success(c, result)
}
