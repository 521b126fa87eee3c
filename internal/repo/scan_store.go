package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/qriscuy/internal/domain"
)

// ScanTx is the set of operations the scan verifier performs inside one
// transaction.
type ScanTx interface {
	FingerprintByB64(fingerprintB64 string) (*domain.Fingerprint, error)
	Invoice(id string) (*domain.Invoice, error)
	CompareAndSetStatus(id string, from, to domain.Status) error
	AppendScanEvent(invoiceID, deviceID, clientMeta string) (*domain.ScanEvent, error)
}

// ScanStore is the GORM-backed unit of work used by the scan verifier.
type ScanStore struct {
	DB *gorm.DB
}

// NewScanStore wraps db.
func NewScanStore(db *gorm.DB) *ScanStore { return &ScanStore{DB: db} }

// WithinTx runs fn in a transaction. Returning a non-nil error from fn rolls
// back every write made through the ScanTx.
func (s *ScanStore) WithinTx(ctx context.Context, fn func(tx ScanTx) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormScanTx{ctx: ctx, db: tx})
	})
}

type gormScanTx struct {
	ctx context.Context
	db  *gorm.DB
}

func (t *gormScanTx) FingerprintByB64(fingerprintB64 string) (*domain.Fingerprint, error) {
	return GetFingerprintByB64(t.ctx, t.db, fingerprintB64)
}

func (t *gormScanTx) Invoice(id string) (*domain.Invoice, error) {
	return GetInvoice(t.ctx, t.db, id)
}

func (t *gormScanTx) CompareAndSetStatus(id string, from, to domain.Status) error {
	return CompareAndSetStatus(t.ctx, t.db, id, from, to)
}

func (t *gormScanTx) AppendScanEvent(invoiceID, deviceID, clientMeta string) (*domain.ScanEvent, error) {
	return CreateScanEvent(t.ctx, t.db, invoiceID, deviceID, clientMeta)
}
