package store

import (
	"fmt"
	"sync/atomic"
	"testing"

	"zapbot-backend/internal/database"
	"zapbot-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type countingInvalidator struct {
	n atomic.Int64
}

func (c *countingInvalidator) Invalidate() {
	c.n.Add(1)
}

func seedCategoryClient(t *testing.T, db *gorm.DB, category string) models.Client {
	t.Helper()
	client := models.Client{
		ID:       uuid.NewString(),
		Name:     "Cliente",
		Phone:    uuid.NewString(),
		Category: category,
		Status:   models.ClientActive,
	}
	require.NoError(t, db.Create(&client).Error)
	return client
}
