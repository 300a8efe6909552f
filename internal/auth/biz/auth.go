package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lk2023060901/file-vault-backend/internal/auth"
	filebiz "github.com/lk2023060901/file-vault-backend/internal/file/biz"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrAccountLocked      = errors.New("account is locked due to too many failed login attempts")
	ErrInvalidEmail       = errors.New("email cannot be used as a storage namespace")
	ErrNamespaceTaken     = errors.New("storage namespace derived from email is already in use")
)

// 登录失败锁定策略
const (
	MaxFailedLogins = 5
	LockDuration    = 15 * time.Minute
)

// User 认证相关的用户模型
type User struct {
	ID                  string // UUID v7
	Name                string
	Email               string
	Namespace           string // 存储 key 前缀，用户之间唯一
	PasswordHash        string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UserRepo 用户仓库接口
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByNamespace(ctx context.Context, namespace string) (*User, error)
	RecordLogin(ctx context.Context, userID, ip string, at time.Time) error
	IncrementFailedLogins(ctx context.Context, userID string) error
	LockAccount(ctx context.Context, userID string, until time.Time) error
}

// LoginResult 登录结果
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int       `json:"expires_in"`
	User        *User     `json:"-"`
}

// AuthUseCase 认证业务逻辑
type AuthUseCase struct {
	userRepo   UserRepo
	jwtManager *auth.JWTManager
	logger     *logger.Logger
	now        func() time.Time
}

// NewAuthUseCase 创建认证用例
func NewAuthUseCase(userRepo UserRepo, jwtManager *auth.JWTManager, log *logger.Logger) *AuthUseCase {
	return &AuthUseCase{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		logger:     log.Named("auth"),
		now:        time.Now,
	}
}

// Register 用户注册，邮箱必须能推导出存储命名空间，且命名空间未被其他用户占用
func (uc *AuthUseCase) Register(ctx context.Context, name, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	namespace, err := filebiz.NamespaceFromEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	existing, err := uc.userRepo.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, ErrEmailAlreadyExists
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	// alice@example.com 和 alice@example.org 会得到同一个命名空间
	holder, err := uc.userRepo.GetByNamespace(ctx, namespace)
	if err == nil && holder != nil {
		return nil, ErrNamespaceTaken
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check namespace: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := uc.now()
	user := &User{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		Namespace:    namespace,
		PasswordHash: string(passwordHash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	uc.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login 邮箱密码登录，签发 access token
func (uc *AuthUseCase) Login(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	user, err := uc.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := uc.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := uc.userRepo.IncrementFailedLogins(ctx, user.ID); err != nil {
			uc.logger.Warn("failed to record failed login", zap.String("user_id", user.ID), zap.Error(err))
		}
		// 连续失败达到上限后锁定
		if user.FailedLoginAttempts+1 >= MaxFailedLogins {
			if err := uc.userRepo.LockAccount(ctx, user.ID, now.Add(LockDuration)); err != nil {
				uc.logger.Warn("failed to lock account", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := uc.jwtManager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	if err := uc.userRepo.RecordLogin(ctx, user.ID, ip, now); err != nil {
		uc.logger.Warn("failed to record login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		ExpiresIn:   int(uc.jwtManager.TTL().Seconds()),
		User:        user,
	}, nil
}
