package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/qriscuy/internal/domain"
)

// ErrDuplicate means a live record already holds (merchant_id, key).
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns the record for (merchantID, key) that is still live
// at now, or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, merchantID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(merchantID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND key = ?", merchantID, key).
		Where("expires_at > ?", now).
		Take(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency claims (merchantID, key) for invoiceID. An expired row
// for the same pair is taken over in place, so keys become reusable without
// waiting for the purge; a live row yields ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, merchantID, key, invoiceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Key:        key,
		InvoiceID:  invoiceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "invoice_id", "status", "created_at", "expires_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "idempotency.expires_at <= ?", Vars: []any{now}},
		}},
	}).Create(rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes records that expired at or before now.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
