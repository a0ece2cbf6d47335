package storage

import (
	"github.com/rs/zerolog/log"

	"github.com/arnavbhatt/rollcall/internal/gormw"
	"github.com/arnavbhatt/rollcall/internal/models"
)

var (
	logger = log.With().Str("component", "storage").Logger()
)

func GetUserByEmail(db *gormw.DB, email string) (*models.User, error) {
	user := &models.User{}
	if err := db.Where("email = ?", email).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func GetUserByID(db *gormw.DB, id uint) (*models.User, error) {
	user := &models.User{}
	if err := db.Where("id = ?", id).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func CreateUser(db *gormw.DB, user *models.User) error {
	return db.Create(user).Error
}

func SaveUser(db *gormw.DB, user *models.User) error {
	return db.Save(user).Error
}

func ListUsers(db *gormw.DB) ([]models.User, error) {
	var users []models.User
	if err := db.Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func ListUnverifiedUsers(db *gormw.DB) ([]models.User, error) {
	var users []models.User
	if err := db.Where("is_verified = ?", false).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func ListUsersByIDs(db *gormw.DB, ids []uint) ([]models.User, error) {
	var users []models.User
	if err := db.Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UnverifiedTokenTaken reports whether any unverified user currently
// holds the token. Verified users' tokens are inert and excluded, so a
// code can be re-drawn once its owner has verified.
func UnverifiedTokenTaken(db *gormw.DB, token string) (bool, error) {
	var count int64
	err := db.Model(&models.User{}).
		Where("token = ? AND is_verified = ?", token, false).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func DeleteUser(db *gormw.DB, user *models.User) error {
	return db.Unscoped().Delete(user).Error
}

// DeleteAllUsers hard-deletes every user and returns how many went.
func DeleteAllUsers(db *gormw.DB) (int64, error) {
	res := db.Unscoped().Where("1 = 1").Delete(&models.User{})
	if res.Error != nil {
		return 0, res.Error
	}
	logger.Info().Int64("deleted", res.RowsAffected).Msg("Deleted all users")
	return res.RowsAffected, nil
}
