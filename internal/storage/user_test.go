package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"github.com/arnavbhatt/rollcall/internal/gormw"
	"github.com/arnavbhatt/rollcall/internal/models"
)

func setupTestDB(t *testing.T) *gormw.DB {
	t.Helper()
	db, err := gormw.Open(&gormw.Config{
		LogLevel: gormlog.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	return db
}

func seedUser(t *testing.T, db *gormw.DB, email, token string, verified bool) *models.User {
	t.Helper()
	user := &models.User{
		Email:          email,
		Name:           "Test",
		College:        "MIT",
		Branch:         "CS",
		Year:           1,
		Token:          token,
		IsVerified:     verified,
		TokenCreatedAt: time.Now().UTC(),
	}
	require.NoError(t, CreateUser(db, user))
	return user
}

func TestGetUserByEmail(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "alice@example.com", "AAA111", false)

	user, err := GetUserByEmail(db, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "AAA111", user.Token)

	_, err = GetUserByEmail(db, "nobody@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUnverifiedTokenTaken(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "alice@example.com", "AAA111", false)
	seedUser(t, db, "bob@example.com", "BBB222", true)

	taken, err := UnverifiedTokenTaken(db, "AAA111")
	require.NoError(t, err)
	assert.True(t, taken)

	// Verified users' tokens are inert.
	taken, err = UnverifiedTokenTaken(db, "BBB222")
	require.NoError(t, err)
	assert.False(t, taken)

	taken, err = UnverifiedTokenTaken(db, "CCC333")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestListUnverifiedUsers(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "alice@example.com", "AAA111", false)
	seedUser(t, db, "bob@example.com", "BBB222", true)
	seedUser(t, db, "carol@example.com", "CCC333", false)

	users, err := ListUnverifiedUsers(db)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice@example.com", users[0].Email)
	assert.Equal(t, "carol@example.com", users[1].Email)
}

func TestDeleteAllUsers(t *testing.T) {
	db := setupTestDB(t)
	seedUser(t, db, "alice@example.com", "AAA111", false)
	seedUser(t, db, "bob@example.com", "BBB222", true)

	count, err := DeleteAllUsers(db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	users, err := ListUsers(db)
	require.NoError(t, err)
	assert.Empty(t, users)

	// Hard delete: the emails are reusable immediately.
	seedUser(t, db, "alice@example.com", "DDD444", false)
}
