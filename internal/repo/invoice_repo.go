// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Invoice
// model and its Fingerprint.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CompareAndSetStatus returns ErrStaleStatus when the row is no longer in
//     the expected state, including when SQLite reports lock contention.
//   - On other DB errors the raw gorm error is propagated.
//
// Functions:
//
//   - CreateInvoice(ctx, db, inv) -> error
//     Inserts the invoice and, when set, its Fingerprint association.
//
//   - GetInvoice(ctx, db, id) -> *domain.Invoice, error
//
//   - CountInvoices(ctx, db, merchantID) -> (int64, error)
//
//   - ListInvoicesPage(ctx, db, merchantID, offset, limit) -> []domain.Invoice, error
//
//   - GetFingerprintByB64(ctx, db, fp) -> *domain.Fingerprint, error
//
//   - GetFingerprintByInvoice(ctx, db, invoiceID) -> *domain.Fingerprint, error
//
//   - CompareAndSetStatus(ctx, db, id, from, to) -> error
//
//   - CompareAndSetStatusAt(ctx, db, id, from, to, at) -> error
//
// Usage:
//
//	inv, err := repo.GetInvoice(ctx, db, id)
//	if errors.Is(err, repo.ErrNotFound) {
//	    // handle missing
//	} else if err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/qriscuy/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleStatus is returned by CompareAndSetStatus when another writer moved
// the invoice first.
var ErrStaleStatus = errors.New("invoice status changed concurrently")

// CreateInvoice inserts inv. CreatedAt/UpdatedAt default to now (UTC) when
// unset. A non-nil inv.Fingerprint is inserted in the same statement batch.
func CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	if fp := inv.Fingerprint; fp != nil && fp.CreatedAt.IsZero() {
		fp.CreatedAt = inv.CreatedAt
	}
	return db.WithContext(ctx).Create(inv).Error
}

// GetInvoice fetches a single invoice by ID, or ErrNotFound if missing.
func GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// CountInvoices returns the number of invoices issued by merchantID.
func CountInvoices(ctx context.Context, db *gorm.DB, merchantID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("merchant_id = ?", merchantID).
		Count(&total).Error
	return total, err
}

// ListInvoicesPage returns a page of merchantID's invoices, newest first.
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListInvoicesPage(ctx context.Context, db *gorm.DB, merchantID string, offset, limit int) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetFingerprintByB64 looks up a fingerprint by its encoded text.
func GetFingerprintByB64(ctx context.Context, db *gorm.DB, fingerprintB64 string) (*domain.Fingerprint, error) {
	var fp domain.Fingerprint
	if err := db.WithContext(ctx).Where("fingerprint_b64 = ?", fingerprintB64).First(&fp).Error; err != nil {
		return nil, err
	}
	return &fp, nil
}

// GetFingerprintByInvoice returns the fingerprint issued for invoiceID.
func GetFingerprintByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.Fingerprint, error) {
	var fp domain.Fingerprint
	if err := db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&fp).Error; err != nil {
		return nil, err
	}
	return &fp, nil
}

// CompareAndSetStatus moves invoice id from -> to in a single conditional
// UPDATE. Zero affected rows means the invoice is missing or was moved by a
// concurrent writer; callers that already loaded the row get ErrStaleStatus.
func CompareAndSetStatus(ctx context.Context, db *gorm.DB, id string, from, to domain.Status) error {
	return CompareAndSetStatusAt(ctx, db, id, from, to, time.Now().UTC())
}

// CompareAndSetStatusAt is CompareAndSetStatus with an explicit updated_at.
func CompareAndSetStatusAt(ctx context.Context, db *gorm.DB, id string, from, to domain.Status, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": at,
		})
	if res.Error != nil {
		if isLockContention(res.Error) {
			return ErrStaleStatus
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// isLockContention recognises SQLite's busy/locked errors, which a writer
// whose read snapshot went stale receives instead of a zero-row update.
func isLockContention(err error) bool {
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") ||
		strings.Contains(low, "database table is locked") ||
		strings.Contains(low, "sqlite_busy")
}
