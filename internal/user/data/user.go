package data

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/user/biz"
)

// NamespaceIndex users.namespace 唯一索引名
const NamespaceIndex = "idx_users_namespace"

// UserPO represents the database model
type UserPO struct {
	ID    string `gorm:"type:uuid;primarykey"`
	Name  string `gorm:"size:100;not null"`
	Email string `gorm:"size:255;not null;uniqueIndex:idx_users_email,where:deleted_at IS NULL"`
	// 存储 key 前缀，由邮箱推导
	Namespace string `gorm:"size:255;not null;default:'';uniqueIndex:idx_users_namespace,where:deleted_at IS NULL AND namespace <> ''"`

	// 认证信息
	PasswordHash string `gorm:"size:255;not null"`

	// 登录追踪
	LastLoginAt         *time.Time
	LastLoginIP         *string `gorm:"size:45"`
	FailedLoginAttempts int     `gorm:"not null;default:0"`
	LockedUntil         *time.Time

	// 时间戳
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (UserPO) TableName() string {
	return "users"
}

// UserRepo implements biz.UserRepo interface
type UserRepo struct {
	db *database.DB
}

func NewUserRepo(db *database.DB) biz.UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*biz.User, error) {
	var po UserPO
	if err := r.db.WithContext(ctx).GetDB().Where("id = ?", id).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrUserNotFound
		}
		return nil, err
	}

	return r.toUser(&po), nil
}

func (r *UserRepo) toUser(po *UserPO) *biz.User {
	return &biz.User{
		ID:          po.ID,
		Name:        po.Name,
		Email:       po.Email,
		LastLoginAt: po.LastLoginAt,
		CreatedAt:   po.CreatedAt,
		UpdatedAt:   po.UpdatedAt,
	}
}
