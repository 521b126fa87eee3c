package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/qriscuy/internal/domain"
)

// CreateScanEvent appends a scan event for invoiceID. Empty deviceID and
// clientMeta are stored as NULL.
func CreateScanEvent(ctx context.Context, db *gorm.DB, invoiceID, deviceID, clientMeta string) (*domain.ScanEvent, error) {
	ev := &domain.ScanEvent{
		ID:        uuid.NewString(),
		InvoiceID: invoiceID,
		CreatedAt: time.Now().UTC(),
	}
	if deviceID != "" {
		ev.DeviceID = &deviceID
	}
	if clientMeta != "" {
		ev.ClientMeta = &clientMeta
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ListScanEvents returns the scan events of an invoice, oldest first.
func ListScanEvents(ctx context.Context, db *gorm.DB, invoiceID string) ([]domain.ScanEvent, error) {
	var out []domain.ScanEvent
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at asc").
		Order("id").
		Find(&out).Error
	return out, err
}
