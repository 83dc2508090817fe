package services

import (
	"testing"
	"time"

	"tournament-wallet-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database per test. A single connection
// keeps the memory database alive and serializes concurrent goroutines at the
// pool, so races still resolve through the conditional updates.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.Transaction{},
		&models.Tournament{},
		&models.Participation{},
		&models.WithdrawalRequest{},
	))

	// SQLite only auto-populates the rowid column, so the seq column stays
	// NULL on insert. Mirror the Postgres bigserial behaviour with a trigger.
	require.NoError(t, db.Exec(`
		CREATE TRIGGER transactions_seq AFTER INSERT ON transactions
		WHEN NEW.seq IS NULL
		BEGIN
			UPDATE transactions SET seq = NEW.rowid WHERE rowid = NEW.rowid;
		END;
	`).Error)

	return db
}

func seedAccount(t *testing.T, db *gorm.DB, balance int64) string {
	t.Helper()
	account := models.Account{
		ID:       uuid.NewString(),
		Username: "player-" + uuid.NewString()[:8],
		Currency: "USD",
		Balance:  balance,
	}
	require.NoError(t, db.Create(&account).Error)
	return account.ID
}

type tournamentOpts struct {
	status   models.TournamentStatus
	entryFee int64
	capacity int
	start    time.Time
	end      time.Time
}

func seedTournament(t *testing.T, db *gorm.DB, opts tournamentOpts) string {
	t.Helper()
	if opts.status == "" {
		opts.status = models.TournamentStatusUpcoming
	}
	if opts.capacity == 0 {
		opts.capacity = 8
	}
	if opts.start.IsZero() {
		opts.start = time.Now().Add(1 * time.Hour)
	}
	if opts.end.IsZero() {
		opts.end = opts.start.Add(2 * time.Hour)
	}
	id := uuid.NewString()
	tournament := models.Tournament{
		ID:        id,
		Slug:      "test-cup-" + id[:8],
		Name:      "Test Cup",
		EntryFee:  opts.entryFee,
		Capacity:  opts.capacity,
		Status:    opts.status,
		StartTime: opts.start,
		EndTime:   opts.end,
		CreatorID: uuid.NewString(),
	}
	require.NoError(t, db.Create(&tournament).Error)
	return tournament.ID
}
