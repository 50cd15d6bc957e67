package testutil

import (
	"testing"

	"github.com/Danya2kk/diplomTMS/cache"
	dbsqlite "github.com/Danya2kk/diplomTMS/db/sqlite"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an in-memory SQLite DB and runs AutoMigrate.
// Each call gets a private database, safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbsqlite.Open("file::memory:?cache=private")
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// CreateProfile inserts an account + profile pair for tests and returns the profile.
func CreateProfile(t *testing.T, db *gorm.DB, username, first, last string) *model.Profile {
	t.Helper()
	acc := &model.Account{Username: username, PasswordHash: "x", Status: 1}
	require.NoError(t, db.Create(acc).Error)
	p := &model.Profile{AccountID: acc.ID, FirstName: first, LastName: last}
	require.NoError(t, db.Create(p).Error)
	return p
}
