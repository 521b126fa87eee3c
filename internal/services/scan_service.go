// Package services – ScanService
//
// This file implements the scan verifier: the callback a wallet issues after
// reading a QR. It authenticates the presented fingerprint, enforces the TTL
// and single-use rules, and advances the invoice through its lifecycle.
//
// Observability: HandleScan is OpenTelemetry-instrumented and every outcome
// is counted in qriscuy_scan_outcomes_total.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/qriscuy/internal/domain"
	"github.com/tbourn/qriscuy/internal/fingerprint"
	"github.com/tbourn/qriscuy/internal/lock"
	"github.com/tbourn/qriscuy/internal/observability"
	"github.com/tbourn/qriscuy/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultLockWait   = 250 * time.Millisecond
	lockRetryInterval = 20 * time.Millisecond
)

// ScanStore is the unit of work the verifier runs in. repo.ScanStore is the
// production implementation.
type ScanStore interface {
	WithinTx(ctx context.Context, fn func(tx repo.ScanTx) error) error
}

// SignatureSource recomputes the expected signature of a fingerprint.
type SignatureSource interface {
	Signature(fingerprintB64 string) string
}

// Locker is the optional cross-instance lease taken around a scan.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// ScanRequest is the callback body presented by a wallet.
type ScanRequest struct {
	FingerprintB64 string
	SignatureHex   string
	Timestamp      int64
	Nonce          string
	DeviceID       string
	ClientMeta     map[string]any
	ClientIP       string // logged only
}

// ScanResult reports the invoice state after a successful scan.
type ScanResult struct {
	InvoiceID     string
	Status        domain.Status
	StatusChanged bool
}

// ScanService verifies scan callbacks.
type ScanService struct {
	Store  ScanStore
	Signer SignatureSource

	// Locker is nil unless REDIS_URL is configured. LockWait bounds how
	// long a scan retries a contended lease.
	Locker   Locker
	LockTTL  time.Duration
	LockWait time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// HandleScan verifies req and records the scan. The checks run in a fixed
// order and the first failure is returned; only expiry writes anything on
// the failure path.
func (s *ScanService) HandleScan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	tr := otel.Tracer("services/ScanService")
	ctx, span := tr.Start(ctx, "HandleScan",
		trace.WithAttributes(attribute.Bool("scan.has_device", req.DeviceID != "")),
	)
	defer span.End()

	res, err := s.handle(ctx, req)
	if err != nil {
		outcome := KindOf(err).Code()
		observability.ScanOutcomes.WithLabelValues(outcome).Inc()
		span.SetStatus(codes.Error, outcome)
		span.RecordError(err)
		return nil, err
	}
	observability.ScanOutcomes.WithLabelValues("accepted").Inc()
	span.SetAttributes(
		attribute.String("invoice.id", res.InvoiceID),
		attribute.String("invoice.status", res.Status.String()),
	)
	return res, nil
}

func (s *ScanService) handle(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if req.FingerprintB64 == "" {
		return nil, newError(KindBadPayload, "fingerprint not found")
	}

	if s.Locker != nil {
		if release := s.acquire(ctx, lock.ScanKey(req.FingerprintB64)); release != nil {
			defer release()
		}
	}

	meta, err := encodeClientMeta(req.ClientMeta)
	if err != nil {
		return nil, wrapError(KindValidation, "client_meta must be a JSON object", err)
	}

	now := s.now()
	var (
		result  *ScanResult
		expired bool
	)
	err = s.Store.WithinTx(ctx, func(tx repo.ScanTx) error {
		fp, err := tx.FingerprintByB64(req.FingerprintB64)
		if errors.Is(err, repo.ErrNotFound) {
			return newError(KindBadPayload, "fingerprint not found")
		}
		if err != nil {
			return err
		}

		expected := s.Signer.Signature(req.FingerprintB64)
		if !fingerprint.Equal(expected, req.SignatureHex) {
			securityEvent(fp.InvoiceID, req.ClientIP, "claimed signature mismatch")
			return newError(KindInvalidSignature, "invalid signature")
		}
		if !fingerprint.Equal(fp.SignatureHex, expected) {
			securityEvent(fp.InvoiceID, req.ClientIP, "stored signature mismatch")
			return newError(KindInvalidSignature, "fingerprint signature mismatch")
		}
		if fp.Nonce != req.Nonce {
			return newError(KindBadPayload, "nonce mismatch")
		}
		if fp.Timestamp != req.Timestamp {
			return newError(KindBadPayload, "timestamp mismatch")
		}

		inv, err := tx.Invoice(fp.InvoiceID)
		if errors.Is(err, repo.ErrNotFound) {
			return newError(KindBadPayload, "fingerprint not found")
		}
		if err != nil {
			return err
		}

		if fp.ExpiredAt(now) {
			// Terminal invoices keep their status; the caller still sees expiry.
			if inv.Status.CanTransition(domain.StatusExpired) {
				if err := tx.CompareAndSetStatus(inv.ID, inv.Status, domain.StatusExpired); err != nil &&
					!errors.Is(err, repo.ErrStaleStatus) {
					return err
				}
			}
			expired = true
			return nil
		}

		switch inv.Status {
		case domain.StatusCreated:
		case domain.StatusScanned, domain.StatusSuccess, domain.StatusRejected, domain.StatusExpired:
			return newError(KindReplay, "invoice already processed")
		default:
			return fmt.Errorf("invoice %s: unknown status %d", inv.ID, inv.Status)
		}

		if err := tx.CompareAndSetStatus(inv.ID, domain.StatusCreated, domain.StatusScanned); err != nil {
			if errors.Is(err, repo.ErrStaleStatus) {
				return newError(KindReplay, "invoice already processed")
			}
			return err
		}
		final := domain.StatusScanned
		switch inv.Policy {
		case domain.PolicyFast:
			if err := tx.CompareAndSetStatus(inv.ID, domain.StatusScanned, domain.StatusSuccess); err != nil {
				if errors.Is(err, repo.ErrStaleStatus) {
					return newError(KindReplay, "invoice already processed")
				}
				return err
			}
			final = domain.StatusSuccess
		case domain.PolicySafe:
		default:
			return fmt.Errorf("invoice %s: unknown policy %d", inv.ID, inv.Policy)
		}

		if _, err := tx.AppendScanEvent(inv.ID, req.DeviceID, meta); err != nil {
			return err
		}
		result = &ScanResult{
			InvoiceID:     inv.ID,
			Status:        final,
			StatusChanged: final != inv.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Returned after commit so the EXPIRED status is persisted.
	if expired {
		return nil, newError(KindFingerprintExpired, "fingerprint expired")
	}
	return result, nil
}

func (s *ScanService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// acquire takes the scan lease, retrying while another scan holds it for up
// to LockWait. A nil release means the scan runs without the lease; the
// conditional status update still lets exactly one scan win, and a lease
// held by a request that later fails verification consumes nothing.
func (s *ScanService) acquire(ctx context.Context, key string) (release func()) {
	deadline := time.Now().Add(s.lockWait())
	for {
		token, ok, err := s.Locker.TryLock(ctx, key, s.lockTTL())
		if err != nil {
			log.Warn().Err(err).Msg("scan lock unavailable; continuing without it")
			return nil
		}
		if ok {
			return func() {
				if rerr := s.Locker.Release(context.WithoutCancel(ctx), key, token); rerr != nil {
					log.Warn().Err(rerr).Msg("scan lock release failed")
				}
			}
		}
		if !time.Now().Before(deadline) {
			log.Debug().Str("lock_key", key).Msg("scan lock contended; continuing without it")
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(lockRetryInterval):
		}
	}
}

func (s *ScanService) lockWait() time.Duration {
	if s.LockWait > 0 {
		return s.LockWait
	}
	return defaultLockWait
}

func (s *ScanService) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 5 * time.Second
}

func encodeClientMeta(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// securityEvent is the one log line per rejected signature that security
// alerting counts.
func securityEvent(invoiceID, clientIP, reason string) {
	log.Warn().
		Bool("security_event", true).
		Str("invoice_id", invoiceID).
		Str("client_ip", clientIP).
		Str("reason", reason).
		Msg("scan rejected: invalid signature")
}
