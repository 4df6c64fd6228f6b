package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testIdentityManager(t *testing.T) *Manager {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := dbConn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	manager, err := NewManager(zaptest.NewLogger(t), dbConn)
	require.NoError(t, err)

	return manager
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestNewAndGetByEmail(t *testing.T) {
	manager := testIdentityManager(t)
	ctx := context.Background()

	created, err := manager.New(ctx, "Alice@Example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Equal(t, RoleUser, created.Role)
	assert.False(t, created.ProfileComplete)

	found, err := manager.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.Email, found.Email)

	absent, err := manager.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestNewDuplicateEmail(t *testing.T) {
	manager := testIdentityManager(t)
	ctx := context.Background()

	_, err := manager.New(ctx, "alice@example.com", "hash")
	require.NoError(t, err)

	_, err = manager.New(ctx, "alice@example.com", "other")
	assert.Error(t, err)
}

func TestUpdateProfile(t *testing.T) {
	manager := testIdentityManager(t)
	ctx := context.Background()

	_, err := manager.New(ctx, "alice@example.com", "hash")
	require.NoError(t, err)

	updated, err := manager.UpdateProfile(ctx, "alice@example.com", ProfileUpdate{
		Username:    "alice01",
		Country:     "India",
		PhoneNumber: "+911234567890",
		CompanyName: "Acme",
	})
	require.NoError(t, err)
	assert.True(t, updated.ProfileComplete)
	assert.Equal(t, "alice01", updated.Username)

	_, err = manager.UpdateProfile(ctx, "nobody@example.com", ProfileUpdate{
		Username: "ghost",
	})
	assert.ErrorIs(t, err, ErrNoSuchIdentity)
}

func TestUsernameTaken(t *testing.T) {
	manager := testIdentityManager(t)
	ctx := context.Background()

	_, err := manager.New(ctx, "alice@example.com", "hash")
	require.NoError(t, err)
	_, err = manager.UpdateProfile(ctx, "alice@example.com", ProfileUpdate{
		Username:    "alice01",
		Country:     "India",
		PhoneNumber: "+911234567890",
		CompanyName: "Acme",
	})
	require.NoError(t, err)

	taken, err := manager.UsernameTaken(ctx, "alice01", "bob@example.com")
	require.NoError(t, err)
	assert.True(t, taken)

	// an identity never collides with its own username
	taken, err = manager.UsernameTaken(ctx, "alice01", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestDeleteRunsCascade(t *testing.T) {
	manager := testIdentityManager(t)
	ctx := context.Background()

	_, err := manager.New(ctx, "alice@example.com", "hash")
	require.NoError(t, err)

	cascaded := false
	err = manager.Delete(ctx, "alice@example.com", func(tx *gorm.DB) error {
		cascaded = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, cascaded)

	absent, err := manager.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, absent)

	err = manager.Delete(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrNoSuchIdentity)
}
