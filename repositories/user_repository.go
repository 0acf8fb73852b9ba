package repositories

import (
	"context"

	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/models"
)

type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error)
	Exists(ctx context.Context, tx *gorm.DB, username, email string) (bool, error)
}

type userRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepository(db *gorm.DB, baseLog *logger.Logger) UserRepository {
	return &userRepository{db: db, log: baseLog.With("repo", "UserRepository")}
}

func (r *userRepository) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).Create(user).Error)
}

func (r *userRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := conn(r.db, tx).WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, Error.Wrap(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error) {
	var user models.User
	if err := conn(r.db, tx).WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, Error.Wrap(err)
	}
	return &user, nil
}

func (r *userRepository) Exists(ctx context.Context, tx *gorm.DB, username, email string) (bool, error) {
	var count int64
	err := conn(r.db, tx).WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	if err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}
