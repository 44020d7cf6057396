// internal/services/sync_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ozstock/reseller-backend/internal/config"
	"github.com/ozstock/reseller-backend/internal/models"
	"github.com/ozstock/reseller-backend/internal/supplier"
)

var (
	ErrNothingToSync     = errors.New("no products eligible for sync")
	ErrSessionNotFound   = errors.New("sync session not found")
	ErrSessionNotRunning = errors.New("sync session is not running")
)

const errorMessageLimit = 500

// SyncService owns the bulk-refresh pipeline: it creates sync sessions,
// drives them batch by batch against the supplier API and tracks
// per-session cancellation flags. Cancellation is cooperative and only
// observed at batch boundaries; in-flight items finish.
type SyncService struct {
	db      *gorm.DB
	fetcher supplier.Fetcher
	cfg     *config.Config
	logger  *logrus.Entry

	mu      sync.Mutex
	cancels map[uuid.UUID]*atomic.Bool
}

type BulkSyncOptions struct {
	Limit   int
	Country string
}

type BulkSyncResult struct {
	SessionID     uuid.UUID `json:"session_id"`
	TotalProducts int       `json:"total_products"`
}

func NewSyncService(db *gorm.DB, fetcher supplier.Fetcher, cfg *config.Config) *SyncService {
	return &SyncService{
		db:      db,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logrus.WithField("component", "sync"),
		cancels: make(map[uuid.UUID]*atomic.Bool),
	}
}

// StartBulkSync creates a session over the caller's eligible products
// (active, under the error threshold, least-recently-synced first) and
// kicks off the orchestration in the background. Returns ErrNothingToSync
// without creating a session when the eligible set is empty.
func (s *SyncService) StartBulkSync(userID uuid.UUID, opts BulkSyncOptions) (*BulkSyncResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.Sync.DefaultLimit
	}
	if limit > s.cfg.Sync.MaxLimit {
		limit = s.cfg.Sync.MaxLimit
	}

	var products []models.Product
	err := s.db.Where("user_id = ? AND is_active = ? AND error_count < ?", userID, true, models.ErrorThreshold).
		Order("last_synced_at ASC NULLS FIRST").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible products: %w", err)
	}

	if len(products) == 0 {
		return nil, ErrNothingToSync
	}

	session := &models.SyncSession{
		UserID:        userID,
		TotalProducts: len(products),
		Status:        models.SyncStatusRunning,
		StartedAt:     time.Now(),
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create sync session: %w", err)
	}

	s.registerCancel(session.ID)
	go s.run(session, products, opts.Country)

	return &BulkSyncResult{SessionID: session.ID, TotalProducts: len(products)}, nil
}

// CancelSync flags a running session for cancellation. The orchestrator
// observes the flag before starting its next batch.
func (s *SyncService) CancelSync(userID, sessionID uuid.UUID) error {
	var session models.SyncSession
	if err := s.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to load sync session: %w", err)
	}

	if session.Status != models.SyncStatusRunning {
		return ErrSessionNotRunning
	}

	s.mu.Lock()
	flag, ok := s.cancels[sessionID]
	s.mu.Unlock()

	if ok {
		flag.Store(true)
		return nil
	}

	// No orchestrator owns this session anymore (e.g. it was running when
	// the process restarted). Close it out directly.
	now := time.Now()
	return s.db.Model(&models.SyncSession{}).
		Where("id = ? AND status = ?", sessionID, models.SyncStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.SyncStatusCancelled,
			"completed_at": &now,
		}).Error
}

// GetSyncStatus returns a session snapshot. A nil sessionID means the
// caller's most recently started session.
func (s *SyncService) GetSyncStatus(userID uuid.UUID, sessionID *uuid.UUID) (*models.SyncSession, error) {
	var session models.SyncSession

	query := s.db.Where("user_id = ?", userID)
	if sessionID != nil {
		query = query.Where("id = ?", *sessionID)
	} else {
		query = query.Order("started_at DESC")
	}

	if err := query.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load sync session: %w", err)
	}
	return &session, nil
}

// GetSyncLogs returns a session's audit trail, oldest first.
func (s *SyncService) GetSyncLogs(userID, sessionID uuid.UUID, limit, offset int) ([]models.SyncLogEntry, int64, error) {
	if _, err := s.GetSyncStatus(userID, &sessionID); err != nil {
		return nil, 0, err
	}

	query := s.db.Model(&models.SyncLogEntry{}).Where("session_id = ?", sessionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sync logs: %w", err)
	}

	var logs []models.SyncLogEntry
	if err := query.Order("created_at ASC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch sync logs: %w", err)
	}
	return logs, total, nil
}

// EligibleUserIDs lists the owners that currently have products the
// scheduler should refresh.
func (s *SyncService) EligibleUserIDs() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.Model(&models.Product{}).
		Where("is_active = ? AND error_count < ?", true, models.ErrorThreshold).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users with eligible products: %w", err)
	}
	return ids, nil
}

// ImportProduct fetches a single product by supplier identifier and
// upserts it into the caller's catalog.
func (s *SyncService) ImportProduct(ctx context.Context, userID uuid.UUID, asin, country string) (*models.Product, error) {
	payload, err := s.fetcher.FetchProduct(ctx, asin, country)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", asin, err)
	}

	normalized := supplier.Normalize(payload, asin)
	now := time.Now()

	var product models.Product
	err = s.db.Where("user_id = ? AND supplier_asin = ?", userID, asin).First(&product).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		product = models.Product{
			UserID:        userID,
			SKU:           "AMZ-" + asin,
			SupplierASIN:  asin,
			SupplierURL:   normalized.URL,
			Title:         normalized.Title,
			Brand:         normalized.Brand,
			Category:      normalized.Category,
			Description:   normalized.Description,
			SupplierPrice: normalized.Price,
			ResalePrice:   s.resalePrice(normalized.Price),
			Currency:      normalized.Currency,
			StockStatus:   normalized.StockStatus,
			StockQuantity: normalized.StockQuantity,
			Features:      normalized.Features,
			Images:        normalized.Images,
			RatingAverage: normalized.RatingAverage,
			RatingCount:   normalized.RatingCount,
			IsActive:      true,
			LastSyncedAt:  &now,
		}
		if err := s.db.Create(&product).Error; err != nil {
			return nil, fmt.Errorf("failed to create product: %w", err)
		}
		s.recordPriceHistory(&product, normalized)
		return &product, nil

	case err != nil:
		return nil, fmt.Errorf("database error: %w", err)
	}

	priceChanged := normalized.Price > 0 && normalized.Price != product.SupplierPrice

	updates := s.buildUpdates(&product, normalized)
	updates["error_count"] = 0
	updates["is_active"] = true
	updates["last_synced_at"] = &now
	if err := s.db.Model(&product).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	if priceChanged {
		s.recordPriceHistory(&product, normalized)
	}

	if err := s.db.First(&product, "id = ?", product.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload product: %w", err)
	}
	return &product, nil
}

// run drives one session to a terminal state: sequential fixed-size
// batches, items within a batch fanned out concurrently.
func (s *SyncService) run(session *models.SyncSession, products []models.Product, country string) {
	logger := s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"total":      len(products),
	})

	defer s.unregisterCancel(session.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Sync orchestration panicked: %v", r)
			s.finish(session, models.SyncStatusFailed, truncate(fmt.Sprintf("orchestration panic: %v", r), errorMessageLimit))
		}
	}()

	logger.Info("Bulk sync started")
	batchSize := s.cfg.Sync.BatchSize

	for start := 0; start < len(products); start += batchSize {
		if s.cancelled(session.ID) {
			logger.Info("Cancellation observed, stopping before next batch")
			s.finish(session, models.SyncStatusCancelled, "")
			return
		}

		end := start + batchSize
		if end > len(products) {
			end = len(products)
		}
		batch := products[start:end]

		var updated, failed int64
		var wg sync.WaitGroup
		for i := range batch {
			product := &batch[i]
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.syncProduct(session, product, country); err != nil {
					atomic.AddInt64(&failed, 1)
				} else {
					atomic.AddInt64(&updated, 1)
				}
			}()
		}
		wg.Wait()

		session.ProcessedCount += len(batch)
		session.UpdatedCount += int(updated)
		session.FailedCount += int(failed)
		if err := s.persistCounters(session); err != nil {
			logger.WithError(err).Error("Failed to persist session counters")
			s.finish(session, models.SyncStatusFailed, truncate(err.Error(), errorMessageLimit))
			return
		}

		// Extra damping on top of the supplier throttle: every item in the
		// next batch will issue its own throttled call.
		if end < len(products) {
			time.Sleep(s.cfg.Sync.BatchDelay)
		}
	}

	s.finish(session, models.SyncStatusCompleted, "")
	logger.WithFields(logrus.Fields{
		"processed": session.ProcessedCount,
		"updated":   session.UpdatedCount,
		"failed":    session.FailedCount,
	}).Info("Bulk sync completed")
}

// syncProduct refreshes a single product. Failures are isolated: the
// product's error counter grows, the session records the failure, the
// batch carries on.
func (s *SyncService) syncProduct(session *models.SyncSession, product *models.Product, country string) error {
	s.logSync(session.ID, &product.ID, models.SyncLogActionProcessing, "fetching "+product.SupplierASIN)

	payload, err := s.fetcher.FetchProduct(context.Background(), product.SupplierASIN, country)
	if err != nil {
		s.recordFailure(product)
		s.logSync(session.ID, &product.ID, models.SyncLogActionError, truncate(err.Error(), errorMessageLimit))
		return err
	}

	normalized := supplier.Normalize(payload, product.SupplierASIN)
	priceChanged := normalized.Price > 0 && normalized.Price != product.SupplierPrice

	now := time.Now()
	updates := s.buildUpdates(product, normalized)
	changedFields := make([]string, 0, len(updates))
	for field := range updates {
		changedFields = append(changedFields, field)
	}
	updates["error_count"] = 0
	updates["is_active"] = true
	updates["last_synced_at"] = &now

	if err := s.db.Model(&models.Product{}).Where("id = ?", product.ID).Updates(updates).Error; err != nil {
		s.recordFailure(product)
		s.logSync(session.ID, &product.ID, models.SyncLogActionError, truncate(err.Error(), errorMessageLimit))
		return err
	}

	if priceChanged {
		s.recordPriceHistory(product, normalized)
	}

	message := "no field changes"
	if len(changedFields) > 0 {
		message = "updated: " + strings.Join(changedFields, ", ")
	}
	s.logSync(session.ID, &product.ID, models.SyncLogActionSuccess, message)
	return nil
}

// buildUpdates diffs normalized fields against the stored record and
// returns only what changed. Empty normalized values never overwrite
// existing data.
func (s *SyncService) buildUpdates(product *models.Product, normalized *supplier.NormalizedProduct) map[string]interface{} {
	updates := make(map[string]interface{})

	if normalized.Title != "" && normalized.Title != product.Title {
		updates["title"] = normalized.Title
	}
	if normalized.Brand != "" && normalized.Brand != product.Brand {
		updates["brand"] = normalized.Brand
	}
	if normalized.Category != "" && normalized.Category != product.Category {
		updates["category"] = normalized.Category
	}
	if normalized.Description != "" && normalized.Description != product.Description {
		updates["description"] = normalized.Description
	}
	if normalized.URL != "" && normalized.URL != product.SupplierURL {
		updates["supplier_url"] = normalized.URL
	}
	if normalized.Price > 0 && normalized.Price != product.SupplierPrice {
		updates["supplier_price"] = normalized.Price
		updates["resale_price"] = s.resalePrice(normalized.Price)
	}
	if normalized.StockStatus != product.StockStatus {
		updates["stock_status"] = normalized.StockStatus
	}
	if normalized.StockQuantity != nil {
		if product.StockQuantity == nil || *normalized.StockQuantity != *product.StockQuantity {
			updates["stock_quantity"] = normalized.StockQuantity
		}
	}
	if normalized.RatingAverage > 0 && normalized.RatingAverage != product.RatingAverage {
		updates["rating_average"] = normalized.RatingAverage
	}
	if normalized.RatingCount > 0 && normalized.RatingCount != product.RatingCount {
		updates["rating_count"] = normalized.RatingCount
	}
	if len(normalized.Features) > 0 {
		updates["features"] = models.StringList(normalized.Features)
	}
	if len(normalized.Images) > 0 {
		updates["images"] = models.StringList(normalized.Images)
	}

	return updates
}

func (s *SyncService) resalePrice(supplierPrice float64) float64 {
	return supplierPrice*s.cfg.Pricing.MarkupFactor + s.cfg.Pricing.FlatFee
}

// recordFailure bumps the product's consecutive-error counter and
// deactivates it once the threshold is reached.
func (s *SyncService) recordFailure(product *models.Product) {
	product.ErrorCount++
	updates := map[string]interface{}{"error_count": product.ErrorCount}

	if product.Deactivated() {
		updates["is_active"] = false
		product.IsActive = false
		s.logger.WithFields(logrus.Fields{
			"sku":         product.SKU,
			"error_count": product.ErrorCount,
		}).Warn("Product deactivated after repeated sync failures")
	}

	if err := s.db.Model(&models.Product{}).Where("id = ?", product.ID).Updates(updates).Error; err != nil {
		s.logger.WithError(err).Error("Failed to record product sync failure")
	}
}

// recordPriceHistory appends an immutable price observation. Best-effort:
// a failed insert is logged, never escalated.
func (s *SyncService) recordPriceHistory(product *models.Product, normalized *supplier.NormalizedProduct) {
	entry := &models.PriceHistoryEntry{
		ProductID:     product.ID,
		SupplierPrice: normalized.Price,
		ResalePrice:   s.resalePrice(normalized.Price),
		StockStatus:   normalized.StockStatus,
	}
	if err := s.db.Create(entry).Error; err != nil {
		s.logger.WithError(err).Warn("Failed to record price history entry")
	}
}

// logSync writes an audit entry. Fire-and-forget with error suppression:
// audit logging must never break the sync itself.
func (s *SyncService) logSync(sessionID uuid.UUID, productID *uuid.UUID, action models.SyncLogAction, message string) {
	entry := &models.SyncLogEntry{
		SessionID: sessionID,
		ProductID: productID,
		Action:    action,
		Message:   message,
	}
	if err := s.db.Create(entry).Error; err != nil {
		s.logger.WithError(err).Debug("Failed to write sync log entry")
	}
}

func (s *SyncService) persistCounters(session *models.SyncSession) error {
	return s.db.Model(&models.SyncSession{}).
		Where("id = ? AND status = ?", session.ID, models.SyncStatusRunning).
		Updates(map[string]interface{}{
			"processed_count": session.ProcessedCount,
			"updated_count":   session.UpdatedCount,
			"failed_count":    session.FailedCount,
		}).Error
}

// finish moves the session to a terminal status exactly once; the status
// guard in the WHERE clause means a terminal state is never overwritten.
func (s *SyncService) finish(session *models.SyncSession, status models.SyncStatus, errorMessage string) {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_count": session.ProcessedCount,
		"updated_count":   session.UpdatedCount,
		"failed_count":    session.FailedCount,
		"status":          status,
		"completed_at":    &now,
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	if err := s.db.Model(&models.SyncSession{}).
		Where("id = ? AND status = ?", session.ID, models.SyncStatusRunning).
		Updates(updates).Error; err != nil {
		s.logger.WithError(err).Error("Failed to finalize sync session")
		return
	}

	session.Status = status
	session.CompletedAt = &now
	session.ErrorMessage = errorMessage
}

func (s *SyncService) registerCancel(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[sessionID] = &atomic.Bool{}
}

func (s *SyncService) unregisterCancel(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, sessionID)
}

func (s *SyncService) cancelled(sessionID uuid.UUID) bool {
	s.mu.Lock()
	flag, ok := s.cancels[sessionID]
	s.mu.Unlock()
	return ok && flag.Load()
}

// truncate shortens message to at most limit bytes, backing up to a rune
// boundary so the stored text stays valid UTF-8.
func truncate(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
