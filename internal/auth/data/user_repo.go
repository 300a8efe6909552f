package data

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/lk2023060901/file-vault-backend/internal/auth/biz"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/user/data"
)

// AuthUserRepo 认证用户仓库
// 使用 internal/pkg/database 封装
type AuthUserRepo struct {
	db *database.DB
}

// NewAuthUserRepo 创建认证用户仓库
func NewAuthUserRepo(db *database.DB) biz.UserRepo {
	return &AuthUserRepo{db: db}
}

// Create 创建用户
func (r *AuthUserRepo) Create(ctx context.Context, user *biz.User) error {
	po := toUserPO(user)
	if err := r.db.WithContext(ctx).GetDB().Create(po).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), data.NamespaceIndex) {
				return biz.ErrNamespaceTaken
			}
			return biz.ErrEmailAlreadyExists
		}
		return err
	}
	user.ID = po.ID
	return nil
}

// GetByEmail 根据邮箱获取用户
func (r *AuthUserRepo) GetByEmail(ctx context.Context, email string) (*biz.User, error) {
	var po data.UserPO
	if err := r.db.WithContext(ctx).GetDB().
		Where("email = ? AND deleted_at IS NULL", email).
		First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrUserNotFound
		}
		return nil, err
	}
	return toBizUser(&po), nil
}

// GetByNamespace 根据存储命名空间获取用户
func (r *AuthUserRepo) GetByNamespace(ctx context.Context, namespace string) (*biz.User, error) {
	var po data.UserPO
	if err := r.db.WithContext(ctx).GetDB().
		Where("namespace = ? AND deleted_at IS NULL", namespace).
		First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrUserNotFound
		}
		return nil, err
	}
	return toBizUser(&po), nil
}

// RecordLogin 更新登录信息并清零失败次数
func (r *AuthUserRepo) RecordLogin(ctx context.Context, userID, ip string, at time.Time) error {
	return r.db.WithContext(ctx).GetDB().
		Model(&data.UserPO{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at":         at,
			"last_login_ip":         ip,
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"updated_at":            at,
		}).Error
}

// IncrementFailedLogins 增加失败登录次数
func (r *AuthUserRepo) IncrementFailedLogins(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).GetDB().
		Model(&data.UserPO{}).
		Where("id = ?", userID).
		UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1")).Error
}

// LockAccount 锁定账户
func (r *AuthUserRepo) LockAccount(ctx context.Context, userID string, until time.Time) error {
	return r.db.WithContext(ctx).GetDB().
		Model(&data.UserPO{}).
		Where("id = ?", userID).
		Update("locked_until", until).Error
}

// toUserPO 业务模型转数据模型
func toUserPO(user *biz.User) *data.UserPO {
	return &data.UserPO{
		ID:                  user.ID,
		Name:                user.Name,
		Email:               user.Email,
		Namespace:           user.Namespace,
		PasswordHash:        user.PasswordHash,
		LastLoginAt:         user.LastLoginAt,
		LastLoginIP:         user.LastLoginIP,
		FailedLoginAttempts: user.FailedLoginAttempts,
		LockedUntil:         user.LockedUntil,
		CreatedAt:           user.CreatedAt,
		UpdatedAt:           user.UpdatedAt,
	}
}

// toBizUser 数据模型转业务模型
func toBizUser(po *data.UserPO) *biz.User {
	return &biz.User{
		ID:                  po.ID,
		Name:                po.Name,
		Email:               po.Email,
		Namespace:           po.Namespace,
		PasswordHash:        po.PasswordHash,
		FailedLoginAttempts: po.FailedLoginAttempts,
		LockedUntil:         po.LockedUntil,
		LastLoginAt:         po.LastLoginAt,
		LastLoginIP:         po.LastLoginIP,
		CreatedAt:           po.CreatedAt,
		UpdatedAt:           po.UpdatedAt,
	}
}
