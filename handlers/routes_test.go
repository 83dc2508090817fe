package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"tournament-wallet-system/models"
	"tournament-wallet-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
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
	require.NoError(t, db.Exec(`
		CREATE TRIGGER transactions_seq AFTER INSERT ON transactions
		WHEN NEW.seq IS NULL
		BEGIN
			UPDATE transactions SET seq = NEW.rowid WHERE rowid = NEW.rowid;
		END;
	`).Error)

	walletService := services.NewWalletService(db)
	participationService := services.NewParticipationService(db, walletService)
	tournamentService := services.NewTournamentService(db, walletService)
	withdrawalService := &services.WithdrawalService{
		DB:        db,
		Wallet:    walletService,
		MinAmount: 100,
		MaxAmount: 1000000,
	}

	app := fiber.New()
	SetupTournamentRoutes(app, tournamentService, participationService)
	SetupWalletRoutes(app, walletService)
	SetupWithdrawalRoutes(app, withdrawalService)
	return app, db
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func TestBalanceRouteRequiresUserContext(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/wallet/balance", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestBalanceRoute(t *testing.T) {
	app, db := newTestApp(t)
	account := models.Account{ID: uuid.NewString(), Username: "p1", Balance: 750}
	require.NoError(t, db.Create(&account).Error)

	req := httptest.NewRequest("GET", "/wallet/balance", nil)
	req.Header.Set("X-User-ID", account.ID)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		AccountID string `json:"account_id"`
		Balance   int64  `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, account.ID, body.AccountID)
	assert.Equal(t, int64(750), body.Balance)
}

func TestDepositRouteRequiresAdmin(t *testing.T) {
	app, db := newTestApp(t)
	account := models.Account{ID: uuid.NewString(), Username: "p1"}
	require.NoError(t, db.Create(&account).Error)

	payload := jsonBody(t, fiber.Map{"amount": 1000, "idempotency_key": uuid.NewString()})
	req := httptest.NewRequest("POST", "/admin/accounts/"+account.ID+"/deposit", payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", uuid.NewString())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestDepositRoute(t *testing.T) {
	app, db := newTestApp(t)
	account := models.Account{ID: uuid.NewString(), Username: "p1"}
	require.NoError(t, db.Create(&account).Error)

	payload := jsonBody(t, fiber.Map{"amount": 1000, "idempotency_key": uuid.NewString()})
	req := httptest.NewRequest("POST", "/admin/accounts/"+account.ID+"/deposit", payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", uuid.NewString())
	req.Header.Set("X-User-Roles", "admin")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	var got models.Account
	require.NoError(t, db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, int64(1000), got.Balance)
}

func TestJoinRouteErrorMapping(t *testing.T) {
	app, db := newTestApp(t)
	account := models.Account{ID: uuid.NewString(), Username: "p1", Balance: 50}
	require.NoError(t, db.Create(&account).Error)
	tournament := models.Tournament{
		ID:        uuid.NewString(),
		Slug:      "cup-1",
		Name:      "Cup",
		EntryFee:  250,
		Capacity:  8,
		Status:    models.TournamentStatusUpcoming,
		StartTime: time.Now().Add(1 * time.Hour),
		EndTime:   time.Now().Add(3 * time.Hour),
		CreatorID: uuid.NewString(),
	}
	require.NoError(t, db.Create(&tournament).Error)

	// Missing idempotency key.
	req := httptest.NewRequest("POST", "/tournaments/"+tournament.ID+"/join", jsonBody(t, fiber.Map{}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", account.ID)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	// Insufficient funds maps to 402.
	req = httptest.NewRequest("POST", "/tournaments/"+tournament.ID+"/join",
		jsonBody(t, fiber.Map{"idempotency_key": uuid.NewString()}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", account.ID)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 402, resp.StatusCode)
}

func TestSubmitRouteRejectsBadCapacity(t *testing.T) {
	app, _ := newTestApp(t)

	payload := fiber.Map{
		"name":            "Zero Cup",
		"capacity":        0,
		"start_time":      time.Now().Add(1 * time.Hour),
		"end_time":        time.Now().Add(3 * time.Hour),
		"idempotency_key": uuid.NewString(),
	}
	req := httptest.NewRequest("POST", "/tournaments", jsonBody(t, payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", uuid.NewString())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	var body struct {
		Error     string `json:"error"`
		Retryable bool   `json:"retryable"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Retryable)

	// The same submission with a sane capacity goes through.
	payload["capacity"] = 8
	payload["idempotency_key"] = uuid.NewString()
	req = httptest.NewRequest("POST", "/tournaments", jsonBody(t, payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", uuid.NewString())
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
}

func TestPublicTournamentReads(t *testing.T) {
	app, db := newTestApp(t)
	tournament := models.Tournament{
		ID:        uuid.NewString(),
		Slug:      "open-cup",
		Name:      "Open Cup",
		Capacity:  8,
		Status:    models.TournamentStatusUpcoming,
		StartTime: time.Now().Add(1 * time.Hour),
		EndTime:   time.Now().Add(3 * time.Hour),
		CreatorID: uuid.NewString(),
	}
	require.NoError(t, db.Create(&tournament).Error)

	// No user context needed on reads.
	req := httptest.NewRequest("GET", "/tournaments/"+tournament.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	req = httptest.NewRequest("GET", "/tournaments/slug/open-cup", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	req = httptest.NewRequest("GET", "/tournaments/slug/no-such-cup", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestWithdrawalRouteValidation(t *testing.T) {
	app, db := newTestApp(t)
	account := models.Account{ID: uuid.NewString(), Username: "p1", Balance: 1000}
	require.NoError(t, db.Create(&account).Error)

	// Below the minimum maps to 400.
	req := httptest.NewRequest("POST", "/withdrawals",
		jsonBody(t, fiber.Map{"amount": 50, "payout_method": "bank", "idempotency_key": uuid.NewString()}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", account.ID)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	req = httptest.NewRequest("POST", "/withdrawals",
		jsonBody(t, fiber.Map{"amount": 400, "payout_method": "bank", "idempotency_key": uuid.NewString()}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", account.ID)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
}
