// Package domain defines the persistence models for invoices, their signed
// fingerprints, the scan events recorded against them and idempotency keys. These types are
// mapped with GORM and form the core data layer of the service.
package domain

import (
	"time"
)

// Invoice is a merchant payment request rendered as a QR payload.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - MerchantID: identifier of the issuing merchant; indexed for listing.
//   - MerchantPayload: the finalized EMV payload including tags 62 and 63.
//   - Amount: integer amount in the smallest currency unit.
//   - Currency: ISO 4217 alphabetic code.
//   - Policy: SAFE or FAST.
//   - Status: lifecycle state, created as CREATED.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - Fingerprint: 1:1 association, cascade-deleted with the invoice.
type Invoice struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	MerchantID      string    `json:"merchant_id"      gorm:"type:varchar(64);not null;index:idx_merchant_invoices,priority:1"`
	MerchantPayload string    `json:"merchant_payload" gorm:"type:text;not null"`
	Amount          int64     `json:"amount"           gorm:"not null;check:amount > 0"`
	Currency        string    `json:"currency"         gorm:"type:varchar(3);not null;default:'IDR'"`
	Policy          Policy    `json:"policy"           gorm:"type:varchar(8);not null"`
	Status          Status    `json:"status"           gorm:"type:varchar(16);not null;index"`
	CreatedAt       time.Time `json:"created_at"       gorm:"index:idx_merchant_invoices,priority:2"`
	UpdatedAt       time.Time `json:"updated_at"`

	Fingerprint *Fingerprint `json:"-" gorm:"foreignKey:InvoiceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }

// Fingerprint is the signed record embedded in tag 62 of an invoice payload.
// It is written once at generation time and only read afterwards.
type Fingerprint struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	InvoiceID      string    `json:"invoice_id"      gorm:"type:char(36);not null;uniqueIndex:ux_fingerprint_invoice"`
	FingerprintB64 string    `json:"fingerprint_b64" gorm:"type:varchar(512);not null;uniqueIndex:ux_fingerprint_b64"`
	SignatureHex   string    `json:"signature_hex"   gorm:"type:varchar(128);not null"`
	Timestamp      int64     `json:"timestamp"       gorm:"not null"`
	Nonce          string    `json:"nonce"           gorm:"type:varchar(64);not null"`
	TTLSeconds     int       `json:"ttl_seconds"     gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for Fingerprint.
func (Fingerprint) TableName() string { return "fingerprints" }

// ExpiredAt reports whether the fingerprint's TTL has elapsed at now.
func (f Fingerprint) ExpiredAt(now time.Time) bool {
	return now.Unix()-f.Timestamp > int64(f.TTLSeconds)
}

// ScanEvent records one accepted scan callback. Rows are append-only.
type ScanEvent struct {
	ID         string    `json:"id"                    gorm:"type:char(36);primaryKey"`
	InvoiceID  string    `json:"invoice_id"            gorm:"type:char(36);not null;index:idx_invoice_scans,priority:1"`
	DeviceID   *string   `json:"device_id,omitempty"   gorm:"type:varchar(128)"`
	ClientMeta *string   `json:"client_meta,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"            gorm:"index:idx_invoice_scans,priority:2"`

	Invoice Invoice `json:"-" gorm:"foreignKey:InvoiceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ScanEvent.
func (ScanEvent) TableName() string { return "scan_events" }

// Idempotency maps a merchant's Idempotency-Key to the invoice it produced.
// Expired rows are ignored on lookup and may be reclaimed.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	MerchantID string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_merchant_key,priority:1"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_merchant_key,priority:2"`
	InvoiceID  string    `gorm:"type:char(36);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName returns the database table name for Idempotency.
func (Idempotency) TableName() string { return "idempotency" }
