package database

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type uowRecord struct {
	ID   uint64 `gorm:"primaryKey"`
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接都是独立的库，固定单连接
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&uowRecord{}))
	return db
}

func TestRunInTransaction_HooksRunAfterCommit(t *testing.T) {
	db := newTestDB(t)
	var seen int64 = -1

	err := RunInTransaction(context.Background(), db, func(tx *gorm.DB, hooks *AfterCommit) error {
		if err := tx.Create(&uowRecord{Name: "a"}).Error; err != nil {
			return err
		}
		hooks.Register("count", func(ctx context.Context) error {
			return db.Model(&uowRecord{}).Count(&seen).Error
		})
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), seen, "hook should observe committed data")
}

func TestRunInTransaction_RollbackDropsHooks(t *testing.T) {
	db := newTestDB(t)
	called := false

	err := RunInTransaction(context.Background(), db, func(tx *gorm.DB, hooks *AfterCommit) error {
		require.NoError(t, tx.Create(&uowRecord{Name: "a"}).Error)
		hooks.Register("never", func(ctx context.Context) error {
			called = true
			return nil
		})
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.False(t, called)
	var count int64
	require.NoError(t, db.Model(&uowRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRunInTransaction_HookFailuresAreIsolated(t *testing.T) {
	db := newTestDB(t)
	var order []string

	err := RunInTransaction(context.Background(), db, func(tx *gorm.DB, hooks *AfterCommit) error {
		hooks.Register("fails", func(ctx context.Context) error {
			order = append(order, "fails")
			return errors.New("notification down")
		})
		hooks.Register("panics", func(ctx context.Context) error {
			order = append(order, "panics")
			panic("unexpected")
		})
		hooks.Register("last", func(ctx context.Context) error {
			order = append(order, "last")
			return nil
		})
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"fails", "panics", "last"}, order)
}
