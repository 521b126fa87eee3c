// Package services – InvoiceService
//
// This file implements InvoiceService, which issues invoices (signing a
// fingerprint, embedding it in the merchant payload and rendering the QR),
// serves status and listing views, and applies merchant confirmations.
//
// Generation is idempotent per (merchant, Idempotency-Key): a retried request
// returns the invoice created by the first one instead of issuing a new QR.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
	"gorm.io/gorm"

	"github.com/tbourn/qriscuy/internal/domain"
	"github.com/tbourn/qriscuy/internal/emv"
	"github.com/tbourn/qriscuy/internal/fingerprint"
	"github.com/tbourn/qriscuy/internal/observability"
	"github.com/tbourn/qriscuy/internal/render"
	"github.com/tbourn/qriscuy/internal/repo"
	"github.com/tbourn/qriscuy/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	merchantIDMin = 3
	merchantIDMax = 64

	defaultCurrency = "IDR"
	defaultQRSize   = 256
)

// InvoiceRepo defines the repository contract required by InvoiceService.
type InvoiceRepo interface {
	CreateInvoice(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error
	GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error)
	GetFingerprintByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.Fingerprint, error)
	CountInvoices(ctx context.Context, db *gorm.DB, merchantID string) (int64, error)
	ListInvoicesPage(ctx context.Context, db *gorm.DB, merchantID string, offset, limit int) ([]domain.Invoice, error)
	InvoiceListVersion(ctx context.Context, db *gorm.DB, merchantID string) (repo.ListVersion, error)
	ListScanEvents(ctx context.Context, db *gorm.DB, invoiceID string) ([]domain.ScanEvent, error)
	CompareAndSetStatusAt(ctx context.Context, db *gorm.DB, id string, from, to domain.Status, at time.Time) error

	GetIdempotency(ctx context.Context, db *gorm.DB, merchantID, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, db *gorm.DB, merchantID, key, invoiceID string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// FingerprintSigner issues signed fingerprints. *fingerprint.Signer is the
// production implementation.
type FingerprintSigner interface {
	Sign(invoiceID, merchantID string, amount int64) (fingerprint.Signed, error)
}

// GenerateRequest carries the fields of a QR generation call.
type GenerateRequest struct {
	MerchantID      string
	MerchantPayload string
	Amount          int64
	Currency        string
	// Policy zero means the configured default.
	Policy         domain.Policy
	IdempotencyKey string
}

// GenerateResult is the issued invoice with its finalized payload and QR.
type GenerateResult struct {
	Invoice     *domain.Invoice
	Payload     emv.Encoded
	QRPNGBase64 string
	Signed      fingerprint.Signed
	// Replayed is true when the invoice was created by an earlier request
	// carrying the same idempotency key.
	Replayed bool
}

// InvoiceView is an invoice with, optionally, its scan history.
type InvoiceView struct {
	Invoice    *domain.Invoice
	ScanEvents []domain.ScanEvent
}

// InvoiceService owns invoice issuance and merchant-side lifecycle actions.
type InvoiceService struct {
	DB     *gorm.DB
	Repo   InvoiceRepo
	Signer FingerprintSigner

	DefaultPolicy  domain.Policy
	TTLSeconds     int
	QRSize         int
	IdempotencyTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Generate validates req, signs a fingerprint, embeds it into the merchant
// payload and persists the invoice together with its fingerprint.
func (s *InvoiceService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("merchant.id", req.MerchantID),
			attribute.Int64("invoice.amount", req.Amount),
			attribute.Bool("idempotency.key", req.IdempotencyKey != ""),
		),
	)
	defer span.End()

	req.MerchantID = strings.TrimSpace(req.MerchantID)
	if n := utf8.RuneCountInString(req.MerchantID); n < merchantIDMin || n > merchantIDMax {
		return nil, newError(KindValidation, fmt.Sprintf("merchant_id must be %d..%d characters", merchantIDMin, merchantIDMax))
	}
	if req.Amount < 1 {
		return nil, newError(KindValidation, "amount must be >= 1")
	}
	cur, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, wrapError(KindValidation, "currency must be an ISO 4217 code", err)
	}
	if req.Policy == 0 {
		req.Policy = s.defaultPolicy()
	}

	if req.IdempotencyKey != "" {
		if res, err := s.replay(ctx, req.MerchantID, req.IdempotencyKey); err == nil {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return res, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	id := uuid.NewString()
	signed, err := s.Signer.Sign(id, req.MerchantID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("sign fingerprint: %w", err)
	}
	enc, err := emv.InjectFingerprint(req.MerchantPayload, emv.Tag62{
		FingerprintB64: signed.FingerprintB64,
		SignatureHex:   signed.SignatureHex,
		Timestamp:      signed.Timestamp,
		Nonce:          signed.Nonce,
		Algorithm:      fingerprint.Algorithm,
	})
	if errors.Is(err, emv.ErrTag62Overflow) {
		// The signer's output is too long for the payload format, whatever
		// the merchant sent.
		return nil, fmt.Errorf("embed fingerprint: %w", err)
	}
	if err != nil {
		return nil, wrapError(KindBadPayload, "merchant_payload is not a valid EMV payload", err)
	}
	png, err := render.PNGBase64(enc.Payload, s.qrSize())
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}

	inv := &domain.Invoice{
		ID:              id,
		MerchantID:      req.MerchantID,
		MerchantPayload: enc.Payload,
		Amount:          req.Amount,
		Currency:        cur,
		Policy:          req.Policy,
		Status:          domain.StatusCreated,
		Fingerprint: &domain.Fingerprint{
			ID:             uuid.NewString(),
			InvoiceID:      id,
			FingerprintB64: signed.FingerprintB64,
			SignatureHex:   signed.SignatureHex,
			Timestamp:      signed.Timestamp,
			Nonce:          signed.Nonce,
			TTLSeconds:     s.TTLSeconds,
		},
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Repo.CreateInvoice(ctx, tx, inv); err != nil {
			return err
		}
		if req.IdempotencyKey == "" {
			return nil
		}
		_, err := s.Repo.CreateIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, id, http.StatusCreated, s.idempotencyTTL())
		return err
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key won; serve its invoice.
		return s.replay(ctx, req.MerchantID, req.IdempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	observability.InvoicesGenerated.WithLabelValues(inv.Policy.String()).Inc()
	span.SetAttributes(attribute.String("invoice.id", id))
	return &GenerateResult{
		Invoice:     inv,
		Payload:     enc,
		QRPNGBase64: png,
		Signed:      signed,
	}, nil
}

// replay rebuilds the response for an invoice created under key.
func (s *InvoiceService) replay(ctx context.Context, merchantID, key string) (*GenerateResult, error) {
	rec, err := s.Repo.GetIdempotency(ctx, s.DB, merchantID, key, s.now().UTC())
	if err != nil {
		return nil, err
	}
	inv, err := s.Repo.GetInvoice(ctx, s.DB, rec.InvoiceID)
	if err != nil {
		return nil, err
	}
	fp, err := s.Repo.GetFingerprintByInvoice(ctx, s.DB, inv.ID)
	if err != nil {
		return nil, err
	}
	png, err := render.PNGBase64(inv.MerchantPayload, s.qrSize())
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return &GenerateResult{
		Invoice:     inv,
		Payload:     emv.Encoded{Payload: inv.MerchantPayload, CRC: trailingCRC(inv.MerchantPayload)},
		QRPNGBase64: png,
		Signed: fingerprint.Signed{
			FingerprintB64: fp.FingerprintB64,
			SignatureHex:   fp.SignatureHex,
			Timestamp:      fp.Timestamp,
			Nonce:          fp.Nonce,
		},
		Replayed: true,
	}, nil
}

// Get returns the invoice, and its scan events when withEvents is set.
func (s *InvoiceService) Get(ctx context.Context, id string, withEvents bool) (*InvoiceView, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("invoice.id", id)),
	)
	defer span.End()

	inv, err := s.Repo.GetInvoice(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newError(KindNotFound, "invoice not found")
	}
	if err != nil {
		return nil, err
	}
	view := &InvoiceView{Invoice: inv}
	if withEvents {
		events, err := s.Repo.ListScanEvents(ctx, s.DB, id)
		if err != nil {
			return nil, err
		}
		view.ScanEvents = events
	}
	return view, nil
}

// ListPage returns a page of a merchant's invoices, newest first, and the
// total count.
func (s *InvoiceService) ListPage(ctx context.Context, merchantID string, page, pageSize int) ([]domain.Invoice, int64, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("merchant.id", merchantID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if strings.TrimSpace(merchantID) == "" {
		return nil, 0, newError(KindValidation, "merchant_id is required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := utils.Offset(page, pageSize)

	total, err := s.Repo.CountInvoices(ctx, s.DB, merchantID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Invoice{}, 0, nil
	}
	items, err := s.Repo.ListInvoicesPage(ctx, s.DB, merchantID, offset, pageSize)
	return items, total, err
}

// ListVersion reports the version of merchantID's invoice list, from which
// the HTTP layer derives its ETag.
func (s *InvoiceService) ListVersion(ctx context.Context, merchantID string) (repo.ListVersion, error) {
	return s.Repo.InvoiceListVersion(ctx, s.DB, merchantID)
}

// Confirm applies a merchant decision (SUCCESS or REJECTED) to a SCANNED
// invoice.
func (s *InvoiceService) Confirm(ctx context.Context, id, action string) (*domain.Invoice, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "Confirm",
		trace.WithAttributes(
			attribute.String("invoice.id", id),
			attribute.String("confirm.action", action),
		),
	)
	defer span.End()

	target, err := domain.ParseStatus(action)
	if err != nil || (target != domain.StatusSuccess && target != domain.StatusRejected) {
		return nil, newError(KindValidation, "action must be SUCCESS or REJECTED")
	}

	inv, err := s.Repo.GetInvoice(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newError(KindNotFound, "invoice not found")
	}
	if err != nil {
		return nil, err
	}
	next, err := inv.Status.Transition(target)
	if err != nil {
		return nil, wrapError(KindIllegalTransition,
			fmt.Sprintf("cannot move invoice from %s to %s", inv.Status, target), err)
	}
	at := s.now().UTC()
	if err := s.Repo.CompareAndSetStatusAt(ctx, s.DB, inv.ID, inv.Status, next, at); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			return nil, wrapError(KindIllegalTransition, "invoice status changed concurrently", err)
		}
		return nil, err
	}
	inv.Status = next
	inv.UpdatedAt = at
	return inv, nil
}

// CheckFingerprintCapacity signs a throwaway fingerprint for a merchant id of
// merchantIDLen characters and reports whether it fits in tag 62. A non-nil
// error wraps emv.ErrTag62Overflow and means Generate will fail for every
// merchant at least that long.
func CheckFingerprintCapacity(signer FingerprintSigner, merchantIDLen int) error {
	if merchantIDLen < merchantIDMin {
		merchantIDLen = merchantIDMin
	}
	signed, err := signer.Sign(uuid.NewString(), strings.Repeat("M", merchantIDLen), 1)
	if err != nil {
		return fmt.Errorf("sign fingerprint: %w", err)
	}
	_, err = emv.InjectFingerprint("", emv.Tag62{
		FingerprintB64: signed.FingerprintB64,
		SignatureHex:   signed.SignatureHex,
		Timestamp:      signed.Timestamp,
		Nonce:          signed.Nonce,
		Algorithm:      fingerprint.Algorithm,
	})
	return err
}

func (s *InvoiceService) defaultPolicy() domain.Policy {
	if s.DefaultPolicy != 0 {
		return s.DefaultPolicy
	}
	return domain.PolicySafe
}

func (s *InvoiceService) qrSize() int {
	if s.QRSize > 0 {
		return s.QRSize
	}
	return defaultQRSize
}

func (s *InvoiceService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

func (s *InvoiceService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// normalizeCurrency upper-cases code (IDR when empty) and checks it against
// the ISO 4217 table.
func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = defaultCurrency
	}
	if len(code) != 3 {
		return "", fmt.Errorf("currency %q: want 3 letters", code)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", err
	}
	return unit.String(), nil
}

func trailingCRC(payload string) string {
	if len(payload) < 4 {
		return ""
	}
	return payload[len(payload)-4:]
}
