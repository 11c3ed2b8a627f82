package db

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestWaitReady(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file:wait_ready?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)

	err = WaitReady(context.Background(), gdb, time.Second, zap.NewNop())
	assert.NoError(t, err)

	sqlDB, err := gdb.DB()
	assert.NoError(t, err)
	assert.NoError(t, sqlDB.Close())

	err = WaitReady(context.Background(), gdb, 0, zap.NewNop())
	assert.Error(t, err)
}
