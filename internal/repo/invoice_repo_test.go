package repo

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/qriscuy/internal/domain"
)

func allModels() []any {
	return []any{&domain.Invoice{}, &domain.Fingerprint{}, &domain.ScanEvent{}, &domain.Idempotency{}}
}

func TestCreateAndGetInvoice_WithFingerprint(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	inv := &domain.Invoice{
		ID: "i1", MerchantID: "M1", MerchantPayload: "p", Amount: 5000, Currency: "IDR",
		Policy: domain.PolicyFast, Status: domain.StatusCreated,
		Fingerprint: &domain.Fingerprint{ID: "f1", FingerprintB64: "fp-1", SignatureHex: "sig", Timestamp: 10, Nonce: "n", TTLSeconds: 300},
	}
	if err := CreateInvoice(ctx, db, inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.CreatedAt.IsZero() || inv.Fingerprint.CreatedAt.IsZero() {
		t.Fatalf("timestamps not defaulted: %+v", inv)
	}

	got, err := GetInvoice(ctx, db, "i1")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if got.Policy != domain.PolicyFast || got.Status != domain.StatusCreated || got.Amount != 5000 {
		t.Fatalf("unexpected invoice %+v", got)
	}

	fp, err := GetFingerprintByB64(ctx, db, "fp-1")
	if err != nil || fp.InvoiceID != "i1" {
		t.Fatalf("GetFingerprintByB64 = %+v, %v", fp, err)
	}
	fp2, err := GetFingerprintByInvoice(ctx, db, "i1")
	if err != nil || fp2.ID != "f1" {
		t.Fatalf("GetFingerprintByInvoice = %+v, %v", fp2, err)
	}

	if _, err := GetInvoice(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := GetFingerprintByB64(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListInvoicesPage_AndCount(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		seedInvoice(t, db, id, "M1", base.Add(time.Duration(i)*time.Minute))
	}
	seedInvoice(t, db, "z", "M2", base)

	n, err := CountInvoices(ctx, db, "M1")
	if err != nil || n != 4 {
		t.Fatalf("CountInvoices = %d, %v", n, err)
	}

	page, err := ListInvoicesPage(ctx, db, "M1", 1, 2)
	if err != nil {
		t.Fatalf("ListInvoicesPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "c" || page[1].ID != "b" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	before := time.Now().UTC().Add(-time.Hour)
	seedInvoice(t, db, "i1", "M1", before)

	if err := CompareAndSetStatus(ctx, db, "i1", domain.StatusCreated, domain.StatusScanned); err != nil {
		t.Fatalf("CAS CREATED->SCANNED: %v", err)
	}
	got, _ := GetInvoice(ctx, db, "i1")
	if got.Status != domain.StatusScanned || !got.UpdatedAt.After(before) {
		t.Fatalf("status/updated_at not written: %+v", got)
	}

	if err := CompareAndSetStatus(ctx, db, "i1", domain.StatusCreated, domain.StatusScanned); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("second CAS should be stale, got %v", err)
	}
	if err := CompareAndSetStatus(ctx, db, "missing", domain.StatusCreated, domain.StatusScanned); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("missing row should be stale, got %v", err)
	}
}

func TestCompareAndSetStatusAt_WritesGivenTime(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	seedInvoice(t, db, "i1", "M1", time.Now().UTC())

	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := CompareAndSetStatusAt(ctx, db, "i1", domain.StatusCreated, domain.StatusScanned, at); err != nil {
		t.Fatalf("CompareAndSetStatusAt: %v", err)
	}
	got, _ := GetInvoice(ctx, db, "i1")
	if got.Status != domain.StatusScanned || !got.UpdatedAt.Equal(at) {
		t.Fatalf("status=%s updated_at=%v; want SCANNED at %v", got.Status, got.UpdatedAt, at)
	}
}

func TestScanEvents_AppendAndList(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	seedInvoice(t, db, "i1", "M1", time.Now().UTC())

	ev, err := CreateScanEvent(ctx, db, "i1", "", "")
	if err != nil {
		t.Fatalf("CreateScanEvent: %v", err)
	}
	if ev.DeviceID != nil || ev.ClientMeta != nil {
		t.Fatalf("empty optionals should be NULL: %+v", ev)
	}
	if _, err := CreateScanEvent(ctx, db, "i1", "dev-1", `{"app":"x"}`); err != nil {
		t.Fatalf("CreateScanEvent: %v", err)
	}

	list, err := ListScanEvents(ctx, db, "i1")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListScanEvents = %d, %v", len(list), err)
	}
	if list[1].DeviceID == nil || *list[1].DeviceID != "dev-1" {
		t.Fatalf("device id not stored: %+v", list[1])
	}

	if _, err := CreateScanEvent(ctx, db, "ghost", "", ""); err == nil {
		t.Fatalf("expected FK violation for unknown invoice")
	}
}

func TestScanStore_RollbackOnError(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	seedInvoice(t, db, "i1", "M1", time.Now().UTC())
	store := NewScanStore(db)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx ScanTx) error {
		if err := tx.CompareAndSetStatus("i1", domain.StatusCreated, domain.StatusScanned); err != nil {
			return err
		}
		if _, err := tx.AppendScanEvent("i1", "d", ""); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := GetInvoice(ctx, db, "i1")
	if got.Status != domain.StatusCreated {
		t.Fatalf("status should be rolled back, got %s", got.Status)
	}
	events, _ := ListScanEvents(ctx, db, "i1")
	if len(events) != 0 {
		t.Fatalf("scan event should be rolled back, got %d", len(events))
	}
}

// Two transactions race to move the same invoice out of CREATED; exactly one
// may win, the other must observe ErrStaleStatus.
func TestScanStore_ConcurrentCompareAndSet(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "race.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	seedInvoice(t, db, "i1", "M1", time.Now().UTC())
	store := NewScanStore(db)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = store.WithinTx(context.Background(), func(tx ScanTx) error {
				inv, err := tx.Invoice("i1")
				if err != nil {
					return err
				}
				if inv.Status != domain.StatusCreated {
					return ErrStaleStatus
				}
				if err := tx.CompareAndSetStatus("i1", domain.StatusCreated, domain.StatusScanned); err != nil {
					return err
				}
				_, err = tx.AppendScanEvent("i1", "", "")
				return err
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var wins, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrStaleStatus):
			stale++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || stale != 1 {
		t.Fatalf("wins=%d stale=%d; want 1 and 1", wins, stale)
	}
	events, _ := ListScanEvents(context.Background(), db, "i1")
	if len(events) != 1 {
		t.Fatalf("expected exactly one scan event, got %d", len(events))
	}
}
