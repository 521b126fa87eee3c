package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/qriscuy/internal/domain"
)

// ListVersion identifies the current state of a merchant's invoice list.
// Inserts raise Count; any status change bumps LastUpdated.
type ListVersion struct {
	Count       int64
	LastUpdated time.Time // zero when Count is 0
}

// InvoiceListVersion computes the ListVersion for merchantID.
func InvoiceListVersion(ctx context.Context, db *gorm.DB, merchantID string) (ListVersion, error) {
	var v ListVersion
	scoped := db.WithContext(ctx).Model(&domain.Invoice{}).Where("merchant_id = ?", merchantID)

	if err := scoped.Session(&gorm.Session{}).Count(&v.Count).Error; err != nil || v.Count == 0 {
		return v, err
	}

	// Ordering instead of MAX(): SQLite returns MAX over a datetime as TEXT.
	var latest domain.Invoice
	err := scoped.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Take(&latest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ListVersion{}, err
	}
	v.LastUpdated = latest.UpdatedAt
	return v, nil
}
