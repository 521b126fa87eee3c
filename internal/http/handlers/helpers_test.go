package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/qriscuy/internal/domain"
	"github.com/tbourn/qriscuy/internal/fingerprint"
	"github.com/tbourn/qriscuy/internal/repo"
	"github.com/tbourn/qriscuy/internal/services"
)

const basePayload = "000201" + "010211" + "26140010ID.CO.QRIS" + "5303360" + "5802ID" + "5904Toko" + "6007Jakarta"

// ---------- test DB + repo shim ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testInvoiceRepo struct{}

func (testInvoiceRepo) CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return repo.CreateInvoice(ctx, db, inv)
}

func (testInvoiceRepo) GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	return repo.GetInvoice(ctx, db, id)
}

func (testInvoiceRepo) GetFingerprintByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.Fingerprint, error) {
	return repo.GetFingerprintByInvoice(ctx, db, invoiceID)
}

func (testInvoiceRepo) CountInvoices(ctx context.Context, db *gorm.DB, merchantID string) (int64, error) {
	return repo.CountInvoices(ctx, db, merchantID)
}

func (testInvoiceRepo) ListInvoicesPage(ctx context.Context, db *gorm.DB, merchantID string, offset, limit int) ([]domain.Invoice, error) {
	return repo.ListInvoicesPage(ctx, db, merchantID, offset, limit)
}

func (testInvoiceRepo) InvoiceListVersion(ctx context.Context, db *gorm.DB, merchantID string) (repo.ListVersion, error) {
	return repo.InvoiceListVersion(ctx, db, merchantID)
}

func (testInvoiceRepo) ListScanEvents(ctx context.Context, db *gorm.DB, invoiceID string) ([]domain.ScanEvent, error) {
	return repo.ListScanEvents(ctx, db, invoiceID)
}

func (testInvoiceRepo) CompareAndSetStatusAt(ctx context.Context, db *gorm.DB, id string, from, to domain.Status, at time.Time) error {
	return repo.CompareAndSetStatusAt(ctx, db, id, from, to, at)
}

func (testInvoiceRepo) GetIdempotency(ctx context.Context, db *gorm.DB, merchantID, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, merchantID, key, now)
}

func (testInvoiceRepo) CreateIdempotency(ctx context.Context, db *gorm.DB, merchantID, key, invoiceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, merchantID, key, invoiceID, status, ttl)
}

// compactSigner keeps tag 62 under the two-digit length limit.
type compactSigner struct {
	mu  sync.Mutex
	n   int
	now time.Time
}

func (s *compactSigner) Sign(_, _ string, _ int64) (fingerprint.Signed, error) {
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

// newRealServices wires the production services over an in-memory database.
func newRealServices(t *testing.T, now time.Time) (*services.InvoiceService, *services.ScanService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	signer := &compactSigner{now: now}
	clock := func() time.Time { return now }
	inv := &services.InvoiceService{
		DB:            db,
		Repo:          testInvoiceRepo{},
		Signer:        signer,
		DefaultPolicy: domain.PolicySafe,
		TTLSeconds:    300,
		QRSize:        128,
		Now:           clock,
	}
	scan := &services.ScanService{
		Store:  repo.NewScanStore(db),
		Signer: signer,
		Now:    clock,
	}
	return inv, scan, db
}

// ---------- stubs ----------

type stubInvoiceSvc struct {
	generate func(context.Context, services.GenerateRequest) (*services.GenerateResult, error)
	get      func(context.Context, string, bool) (*services.InvoiceView, error)
	listPage func(context.Context, string, int, int) ([]domain.Invoice, int64, error)
	confirm  func(context.Context, string, string) (*domain.Invoice, error)
}

func (s stubInvoiceSvc) Generate(ctx context.Context, req services.GenerateRequest) (*services.GenerateResult, error) {
	if s.generate != nil {
		return s.generate(ctx, req)
	}
	return nil, nil
}

func (s stubInvoiceSvc) Get(ctx context.Context, id string, withEvents bool) (*services.InvoiceView, error) {
	if s.get != nil {
		return s.get(ctx, id, withEvents)
	}
	return nil, nil
}

func (s stubInvoiceSvc) ListPage(ctx context.Context, merchantID string, page, pageSize int) ([]domain.Invoice, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, merchantID, page, pageSize)
	}
	return nil, 0, nil
}

func (s stubInvoiceSvc) Confirm(ctx context.Context, id, action string) (*domain.Invoice, error) {
	if s.confirm != nil {
		return s.confirm(ctx, id, action)
	}
	return nil, nil
}

type stubScanSvc struct {
	handle func(context.Context, services.ScanRequest) (*services.ScanResult, error)
}

func (s stubScanSvc) HandleScan(ctx context.Context, req services.ScanRequest) (*services.ScanResult, error) {
	if s.handle != nil {
		return s.handle(ctx, req)
	}
	return nil, nil
}

// ---------- request helpers ----------

func newEngine(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/qr", h.GenerateQR)
	r.POST("/v1/scan", h.Scan)
	r.GET("/v1/invoices", h.ListInvoices)
	r.GET("/v1/invoices/:id", h.GetInvoice)
	r.POST("/v1/invoices/:id/confirm", h.ConfirmInvoice)
	r.POST("/v1/payloads/inspect", h.InspectPayload)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}
