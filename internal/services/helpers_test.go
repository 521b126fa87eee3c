package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/qriscuy/internal/domain"
	"github.com/tbourn/qriscuy/internal/fingerprint"
	"github.com/tbourn/qriscuy/internal/repo"
)

const testSecret = "test-secret"

// basePayload is a minimal merchant payload without tags 62 and 63.
const basePayload = "000201" + "010211" + "26140010ID.CO.QRIS" + "5303360" + "5802ID" + "5904Toko" + "6007Jakarta"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// repoShim forwards to the repo package, as the router does in production.
type repoShim struct{}

func (repoShim) CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return repo.CreateInvoice(ctx, db, inv)
}

func (repoShim) GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	return repo.GetInvoice(ctx, db, id)
}

func (repoShim) GetFingerprintByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.Fingerprint, error) {
	return repo.GetFingerprintByInvoice(ctx, db, invoiceID)
}

func (repoShim) CountInvoices(ctx context.Context, db *gorm.DB, merchantID string) (int64, error) {
	return repo.CountInvoices(ctx, db, merchantID)
}

func (repoShim) ListInvoicesPage(ctx context.Context, db *gorm.DB, merchantID string, offset, limit int) ([]domain.Invoice, error) {
	return repo.ListInvoicesPage(ctx, db, merchantID, offset, limit)
}

func (repoShim) InvoiceListVersion(ctx context.Context, db *gorm.DB, merchantID string) (repo.ListVersion, error) {
	return repo.InvoiceListVersion(ctx, db, merchantID)
}

func (repoShim) ListScanEvents(ctx context.Context, db *gorm.DB, invoiceID string) ([]domain.ScanEvent, error) {
	return repo.ListScanEvents(ctx, db, invoiceID)
}

func (repoShim) CompareAndSetStatusAt(ctx context.Context, db *gorm.DB, id string, from, to domain.Status, at time.Time) error {
	return repo.CompareAndSetStatusAt(ctx, db, id, from, to, at)
}

func (repoShim) GetIdempotency(ctx context.Context, db *gorm.DB, merchantID, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, merchantID, key, now)
}

func (repoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, merchantID, key, invoiceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, merchantID, key, invoiceID, status, ttl)
}

// compactSigner issues short fingerprints so that tag 62 fits in a
// two-digit length field.
type compactSigner struct {
	mu  sync.Mutex
	n   int
	now time.Time
	err error
}

func (s *compactSigner) Sign(_, _ string, _ int64) (fingerprint.Signed, error) {
	if s.err != nil {
		return fingerprint.Signed{}, s.err
	}
	s.mu.Lock()
	s.n++
	fp := fmt.Sprintf("fp%d", s.n)
	s.mu.Unlock()
	return fingerprint.Signed{
		FingerprintB64: fp,
		SignatureHex:   s.Signature(fp),
		Timestamp:      s.now.Unix(),
		Nonce:          "nA",
	}, nil
}

func (s *compactSigner) Signature(fp string) string { return "sig-" + fp }

func newSigner(t *testing.T, at time.Time) *fingerprint.Signer {
	t.Helper()
	s, err := fingerprint.NewSigner(testSecret)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	s.Now = func() time.Time { return at }
	return s
}

// seedSigned stores an invoice whose fingerprint was signed by signer,
// bypassing payload encoding.
func seedSigned(t *testing.T, db *gorm.DB, signer *fingerprint.Signer, policy domain.Policy, ttl int) (*domain.Invoice, fingerprint.Signed) {
	t.Helper()
	id := uuid.NewString()
	signed, err := signer.Sign(id, "M-001", 15000)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	inv := &domain.Invoice{
		ID:              id,
		MerchantID:      "M-001",
		MerchantPayload: basePayload,
		Amount:          15000,
		Currency:        "IDR",
		Policy:          policy,
		Status:          domain.StatusCreated,
		Fingerprint: &domain.Fingerprint{
			ID:             uuid.NewString(),
			InvoiceID:      id,
			FingerprintB64: signed.FingerprintB64,
			SignatureHex:   signed.SignatureHex,
			Timestamp:      signed.Timestamp,
			Nonce:          signed.Nonce,
			TTLSeconds:     ttl,
		},
	}
	if err := repo.CreateInvoice(context.Background(), db, inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return inv, signed
}

func scanOf(signed fingerprint.Signed) ScanRequest {
	return ScanRequest{
		FingerprintB64: signed.FingerprintB64,
		SignatureHex:   signed.SignatureHex,
		Timestamp:      signed.Timestamp,
		Nonce:          signed.Nonce,
	}
}

func mustStatus(t *testing.T, db *gorm.DB, id string) domain.Status {
	t.Helper()
	inv, err := repo.GetInvoice(context.Background(), db, id)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	return inv.Status
}

func countEvents(t *testing.T, db *gorm.DB, id string) int {
	t.Helper()
	events, err := repo.ListScanEvents(context.Background(), db, id)
	if err != nil {
		t.Fatalf("ListScanEvents: %v", err)
	}
	return len(events)
}
