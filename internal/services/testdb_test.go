package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/disputedesk-backend/internal/logger"
	"github.com/yungbote/disputedesk-backend/internal/types"
)

func newTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.CustomerIdentity{},
		&types.IdentityAddress{},
		&types.IdentityMatch{},
		&types.Order{},
		&types.OrderChangeRecord{},
		&types.RiskScore{},
		&types.DisputeCase{},
	))
	log, err := logger.New("development")
	require.NoError(t, err)
	return db, log
}
