// internal/services/sync_service_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ozstock/reseller-backend/internal/config"
	"github.com/ozstock/reseller-backend/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbPath := "./test_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Serialize sqlite access; batch items write concurrently.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.PriceHistoryEntry{},
		&models.SyncSession{},
		&models.SyncLogEntry{},
	))

	t.Cleanup(func() {
		sqlDB.Close()
		os.Remove(dbPath)
	})
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Sync: config.SyncConfig{
			BatchSize:    10,
			BatchDelay:   time.Millisecond,
			DefaultLimit: 100,
			MaxLimit:     1000,
		},
		Pricing: config.PricingConfig{
			MarkupFactor: 1.5,
			FlatFee:      5,
		},
	}
}

// fakeFetcher stands in for the supplier client. fn decides the outcome
// per identifier; onCall observes the global call sequence.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	fn     func(asin string) (map[string]interface{}, error)
	onCall func(n int)
}

func (f *fakeFetcher) FetchProduct(ctx context.Context, asin, country string) (map[string]interface{}, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	hook := f.onCall
	fn := f.fn
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return fn(asin)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okPayload(price string) map[string]interface{} {
	return map[string]interface{}{
		"product_title":        "Test Product",
		"product_price":        price,
		"product_availability": "In Stock",
	}
}

func seedProducts(t *testing.T, db *gorm.DB, userID uuid.UUID, count int) []models.Product {
	t.Helper()

	products := make([]models.Product, 0, count)
	for i := 0; i < count; i++ {
		product := models.Product{
			UserID:       userID,
			SKU:          fmt.Sprintf("AMZ-B%09d", i),
			SupplierASIN: fmt.Sprintf("B%09d", i),
			Title:        fmt.Sprintf("Seed Product %d", i),
			Currency:     "AUD",
			StockStatus:  models.StockStatusInStock,
			IsActive:     true,
		}
		require.NoError(t, db.Create(&product).Error)
		products = append(products, product)
	}
	return products
}

func waitForTerminal(t *testing.T, db *gorm.DB, sessionID uuid.UUID) *models.SyncSession {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var session models.SyncSession
		require.NoError(t, db.First(&session, "id = ?", sessionID).Error)
		if session.Status.Terminal() {
			return &session
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sync session did not reach a terminal state in time")
	return nil
}

func TestStartBulkSyncNothingToDo(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSyncService(db, &fakeFetcher{}, testConfig())

	_, err := svc.StartBulkSync(uuid.New(), BulkSyncOptions{})
	assert.ErrorIs(t, err, ErrNothingToSync)

	var count int64
	require.NoError(t, db.Model(&models.SyncSession{}).Count(&count).Error)
	assert.Zero(t, count, "no session should be created for an empty eligible set")
}

func TestBulkSyncCompletesWithAccurateCounters(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	seedProducts(t, db, userID, 25)

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return okPayload("$10.00"), nil
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 25, result.TotalProducts)

	session := waitForTerminal(t, db, result.SessionID)
	assert.Equal(t, models.SyncStatusCompleted, session.Status)
	assert.Equal(t, 25, session.ProcessedCount)
	assert.Equal(t, 25, session.UpdatedCount)
	assert.Equal(t, 0, session.FailedCount)
	assert.Equal(t, session.ProcessedCount, session.UpdatedCount+session.FailedCount)
	require.NotNil(t, session.CompletedAt)

	// $10.00 is under the foreign-price ceiling: 10 * 1.5 = 15 AUD,
	// resale 15 * 1.5 + 5 = 27.50.
	var product models.Product
	require.NoError(t, db.First(&product, "user_id = ?", userID).Error)
	assert.InDelta(t, 15.0, product.SupplierPrice, 0.001)
	assert.InDelta(t, 27.5, product.ResalePrice, 0.001)
	assert.Equal(t, 0, product.ErrorCount)
	assert.True(t, product.IsActive)
	require.NotNil(t, product.LastSyncedAt)

	// Every product's price moved from 0, so one history row each.
	var historyCount int64
	require.NoError(t, db.Model(&models.PriceHistoryEntry{}).Count(&historyCount).Error)
	assert.Equal(t, int64(25), historyCount)
}

func TestBulkSyncIsolatesPerItemFailures(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	products := seedProducts(t, db, userID, 12)
	failing := map[string]bool{
		products[0].SupplierASIN: true,
		products[5].SupplierASIN: true,
	}

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		if failing[asin] {
			return nil, errors.New("upstream exploded")
		}
		return okPayload("$20.00"), nil
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)

	session := waitForTerminal(t, db, result.SessionID)
	assert.Equal(t, models.SyncStatusCompleted, session.Status)
	assert.Equal(t, 12, session.ProcessedCount)
	assert.Equal(t, 10, session.UpdatedCount)
	assert.Equal(t, 2, session.FailedCount)

	var failed models.Product
	require.NoError(t, db.First(&failed, "id = ?", products[0].ID).Error)
	assert.Equal(t, 1, failed.ErrorCount)
	assert.True(t, failed.IsActive)

	// The failure lands in the audit trail, truncated if needed.
	var logCount int64
	require.NoError(t, db.Model(&models.SyncLogEntry{}).
		Where("action = ?", models.SyncLogActionError).
		Count(&logCount).Error)
	assert.Equal(t, int64(2), logCount)
}

func TestThresholdDeactivation(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	products := seedProducts(t, db, userID, 1)
	require.NoError(t, db.Model(&models.Product{}).
		Where("id = ?", products[0].ID).
		Update("error_count", models.ErrorThreshold-1).Error)

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return nil, errors.New("still broken")
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)
	waitForTerminal(t, db, result.SessionID)

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", products[0].ID).Error)
	assert.Equal(t, models.ErrorThreshold, product.ErrorCount)
	assert.False(t, product.IsActive)

	// A deactivated product is no longer eligible.
	_, err = svc.StartBulkSync(userID, BulkSyncOptions{})
	assert.ErrorIs(t, err, ErrNothingToSync)
}

func TestSuccessResetsErrorCounter(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	products := seedProducts(t, db, userID, 1)
	require.NoError(t, db.Model(&models.Product{}).
		Where("id = ?", products[0].ID).
		Update("error_count", 7).Error)

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return okPayload("$30.00"), nil
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)
	waitForTerminal(t, db, result.SessionID)

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", products[0].ID).Error)
	assert.Equal(t, 0, product.ErrorCount)
	assert.True(t, product.IsActive)
}

func TestCancellationStopsAtBatchBoundary(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	seedProducts(t, db, userID, 30)

	var once sync.Once
	firstCall := make(chan struct{})
	release := make(chan struct{})

	fetcher := &fakeFetcher{
		fn: func(asin string) (map[string]interface{}, error) {
			return okPayload("$10.00"), nil
		},
		onCall: func(n int) {
			once.Do(func() { close(firstCall) })
			<-release
		},
	}
	svc := NewSyncService(db, fetcher, testConfig())

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)

	// Cancel while the first batch is still in flight, then let it finish.
	<-firstCall
	require.NoError(t, svc.CancelSync(userID, result.SessionID))
	close(release)

	session := waitForTerminal(t, db, result.SessionID)
	assert.Equal(t, models.SyncStatusCancelled, session.Status)
	assert.Equal(t, 10, session.ProcessedCount, "only the in-flight batch completes")
	assert.Equal(t, 10, fetcher.callCount(), "the second batch never starts")
	require.NotNil(t, session.CompletedAt)
}

func TestCancelSyncRejectsTerminalSessions(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	seedProducts(t, db, userID, 2)

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return okPayload("$10.00"), nil
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)
	waitForTerminal(t, db, result.SessionID)

	err = svc.CancelSync(userID, result.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotRunning)

	assert.ErrorIs(t, svc.CancelSync(userID, uuid.New()), ErrSessionNotFound)
}

func TestGetSyncStatusLatest(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	seedProducts(t, db, userID, 1)

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return okPayload("$10.00"), nil
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	_, err := svc.GetSyncStatus(userID, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)
	waitForTerminal(t, db, result.SessionID)

	latest, err := svc.GetSyncStatus(userID, nil)
	require.NoError(t, err)
	assert.Equal(t, result.SessionID, latest.ID)

	// Another user cannot see the session.
	_, err = svc.GetSyncStatus(uuid.New(), &result.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSyncLogsRecordsLifecycle(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	seedProducts(t, db, userID, 3)

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return okPayload("$10.00"), nil
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)
	waitForTerminal(t, db, result.SessionID)

	logs, total, err := svc.GetSyncLogs(userID, result.SessionID, 50, 0)
	require.NoError(t, err)
	// One processing and one success entry per product.
	assert.Equal(t, int64(6), total)
	assert.Len(t, logs, 6)
}

func TestImportProductCreateThenUpdate(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()

	price := "$49.99"
	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return map[string]interface{}{
			"product_title":        "Acme Widget Pro",
			"product_price":        price,
			"product_availability": "Only 3 left in stock",
		}, nil
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	product, err := svc.ImportProduct(context.Background(), userID, "B0ABCDEF12", "AU")
	require.NoError(t, err)
	assert.Equal(t, "AMZ-B0ABCDEF12", product.SKU)
	assert.Equal(t, "Acme Widget Pro", product.Title)
	assert.InDelta(t, 74.99, product.SupplierPrice, 0.02)
	assert.Equal(t, models.StockStatusLimitedStock, product.StockStatus)
	assert.True(t, product.IsActive)

	var historyCount int64
	require.NoError(t, db.Model(&models.PriceHistoryEntry{}).
		Where("product_id = ?", product.ID).
		Count(&historyCount).Error)
	assert.Equal(t, int64(1), historyCount)

	// Re-importing with a changed price updates in place and appends
	// another history row.
	price = "$59.99"
	again, err := svc.ImportProduct(context.Background(), userID, "B0ABCDEF12", "AU")
	require.NoError(t, err)
	assert.Equal(t, product.ID, again.ID)
	assert.InDelta(t, 89.99, again.SupplierPrice, 0.02)

	require.NoError(t, db.Model(&models.PriceHistoryEntry{}).
		Where("product_id = ?", product.ID).
		Count(&historyCount).Error)
	assert.Equal(t, int64(2), historyCount)

	// Same price again: no new history.
	again, err = svc.ImportProduct(context.Background(), userID, "B0ABCDEF12", "AU")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.PriceHistoryEntry{}).
		Where("product_id = ?", product.ID).
		Count(&historyCount).Error)
	assert.Equal(t, int64(2), historyCount)
}

func TestImportFailurePropagates(t *testing.T) {
	db := setupTestDB(t)

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return nil, errors.New("no such product")
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	_, err := svc.ImportProduct(context.Background(), uuid.New(), "B0MISSING01", "AU")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B0MISSING01")
}

func TestCounterPersistenceFailureMarksSessionFailed(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	seedProducts(t, db, userID, 5)

	// Reject counter writes while the session is still running; the
	// terminal status update is let through so the failure is recorded.
	require.NoError(t, db.Exec(`
		CREATE TRIGGER reject_counter_updates
		BEFORE UPDATE ON sync_sessions
		WHEN NEW.status = 'running' AND NEW.processed_count > 0
		BEGIN
			SELECT RAISE(ABORT, 'session store unavailable');
		END`).Error)

	fetcher := &fakeFetcher{fn: func(asin string) (map[string]interface{}, error) {
		return okPayload("$10.00"), nil
	}}
	svc := NewSyncService(db, fetcher, testConfig())

	result, err := svc.StartBulkSync(userID, BulkSyncOptions{})
	require.NoError(t, err)

	session := waitForTerminal(t, db, result.SessionID)
	assert.Equal(t, models.SyncStatusFailed, session.Status)
	assert.Contains(t, session.ErrorMessage, "session store unavailable")
	assert.LessOrEqual(t, len(session.ErrorMessage), 500)
	require.NotNil(t, session.CompletedAt)
}

func TestTruncateBacksUpToRuneBoundary(t *testing.T) {
	message := strings.Repeat("x", 499) + "é tail"
	out := truncate(message, 500)

	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 500)
	assert.Equal(t, strings.Repeat("x", 499), out)

	assert.Equal(t, "short", truncate("short", 500))
}
