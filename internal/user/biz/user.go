package biz

import (
	"context"
	"errors"
	"time"

	filebiz "github.com/lk2023060901/file-vault-backend/internal/file/biz"
)

var ErrUserNotFound = errors.New("user not found")

// User represents the domain model
type User struct {
	ID          string
	Name        string
	Email       string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Profile 用户信息，附带存储命名空间
type Profile struct {
	*User
	Namespace string
}

// UserRepo defines the interface for user data operations
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// UserUseCase contains business logic for user operations
type UserUseCase struct {
	repo UserRepo
}

func NewUserUseCase(repo UserRepo) *UserUseCase {
	return &UserUseCase{repo: repo}
}

// GetProfile 查询用户并推导其文件命名空间
func (uc *UserUseCase) GetProfile(ctx context.Context, id string) (*Profile, error) {
	user, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ns, err := filebiz.NamespaceFromEmail(user.Email)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Namespace: ns}, nil
}
