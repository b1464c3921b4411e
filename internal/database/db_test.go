package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/campuslink/internal/models"
	"github.com/charlesng35/campuslink/pkg/crypto"
)

func TestOpenSQLiteInMemoryAndMigrate(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	require.NoError(t, AutoMigrate(db))
	require.True(t, db.Migrator().HasTable(&models.User{}))
	require.True(t, db.Migrator().HasTable(&models.Notification{}))
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "campuslink.sqlite")

	db, err := Open(Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	require.NoError(t, AutoMigrate(db))
	require.FileExists(t, path)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestSeedDataCreatesBootstrapAdminOnce(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	seed := SeedOptions{AdminUsername: "registrar", AdminPassword: "change-me"}
	require.NoError(t, AutoMigrateAndSeed(db, seed))

	var admin models.User
	require.NoError(t, db.Where("username = ?", "registrar").Take(&admin).Error)
	require.Equal(t, models.RoleAdmin, admin.Role)
	require.Equal(t, "registrar@localhost", admin.Email)
	require.True(t, crypto.VerifyPassword(admin.Password, "change-me"))

	seed.AdminPassword = "another-password"
	require.NoError(t, AutoMigrateAndSeed(db, seed))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	require.NoError(t, db.Where("username = ?", "registrar").Take(&admin).Error)
	require.True(t, crypto.VerifyPassword(admin.Password, "change-me"))
}

func TestSeedDataSkippedWithoutPassword(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	require.NoError(t, AutoMigrateAndSeed(db, SeedOptions{AdminUsername: "admin"}))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)
}
