// Invoice HTTP handlers.
//
// This file exposes REST endpoints for invoices:
//   - POST   /qr                     (generate invoice + QR, idempotent)
//   - GET    /invoices               (list by merchant, paginated, ETag support)
//   - GET    /invoices/{id}          (status view)
//   - POST   /invoices/{id}/confirm  (merchant decision on a scanned invoice)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/tbourn/qriscuy/internal/domain"
	"github.com/tbourn/qriscuy/internal/http/middleware"
	"github.com/tbourn/qriscuy/internal/repo"
	"github.com/tbourn/qriscuy/internal/services"
	"github.com/tbourn/qriscuy/internal/sysutil"
	"github.com/tbourn/qriscuy/internal/utils"
)

//
// Service contracts (context-aware)
//

// InvoiceService defines invoice operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type InvoiceService interface {
	// Generate issues a signed invoice and its QR, or replays the invoice a
	// previous request with the same idempotency key created.
	Generate(ctx context.Context, req services.GenerateRequest) (*services.GenerateResult, error)
	// Get returns one invoice, optionally with its scan history.
	Get(ctx context.Context, id string, withEvents bool) (*services.InvoiceView, error)
	// ListPage returns a page of a merchant's invoices and the total count.
	ListPage(ctx context.Context, merchantID string, page, pageSize int) ([]domain.Invoice, int64, error)
	// Confirm applies SUCCESS or REJECTED to a scanned invoice.
	Confirm(ctx context.Context, id, action string) (*domain.Invoice, error)
}

// listVersioner is implemented by services that can cheaply report whether a
// merchant's invoice list changed. Without it, listings carry no ETag.
type listVersioner interface {
	ListVersion(ctx context.Context, merchantID string) (repo.ListVersion, error)
}

// ScanService verifies wallet scan callbacks.
type ScanService interface {
	HandleScan(ctx context.Context, req services.ScanRequest) (*services.ScanResult, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for invoices, scans and payload inspection.
type Handlers struct {
	invSvc  InvoiceService
	scanSvc ScanService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(invSvc InvoiceService, scanSvc ScanService) *Handlers {
	return &Handlers{invSvc: invSvc, scanSvc: scanSvc}
}

//
// DTOs
//

// GenerateQRRequest is the JSON payload for issuing an invoice.
type GenerateQRRequest struct {
	// MerchantID identifies the issuing merchant (3–64 chars).
	MerchantID string `json:"merchant_id" binding:"required" example:"M-001"`
	// MerchantPayload is the merchant's static QRIS payload; tags 62 and 63
	// are replaced.
	MerchantPayload string `json:"merchant_payload" binding:"required" example:"000201010211520400005303360540510000"`
	// Amount in the smallest currency unit.
	Amount int64 `json:"amount" example:"10000"`
	// Currency is an ISO 4217 code; IDR when empty.
	Currency string `json:"currency,omitempty" example:"IDR"`
	// Policy is SAFE or FAST; the configured default when empty.
	Policy string `json:"policy,omitempty" enums:"SAFE,FAST" example:"SAFE"`
}

// GenerateQRResponse carries the finalized payload, its QR and the signed
// fingerprint embedded in it.
type GenerateQRResponse struct {
	InvoiceID      string `json:"invoice_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Status         string `json:"status" example:"CREATED"`
	Payload        string `json:"payload"`
	CRC            string `json:"crc" example:"A1B2"`
	QRPNGBase64    string `json:"qr_png_base64"`
	FingerprintB64 string `json:"fingerprint_b64"`
	SignatureHex   string `json:"signature_hex"`
	Timestamp      int64  `json:"timestamp" example:"1760000000"`
	Nonce          string `json:"nonce"`
}

// InvoiceStatusResponse is the status view of one invoice.
type InvoiceStatusResponse struct {
	InvoiceID  string             `json:"invoice_id"`
	Status     string             `json:"status" example:"SCANNED"`
	Policy     string             `json:"policy" example:"SAFE"`
	Amount     int64              `json:"amount"`
	Currency   string             `json:"currency" example:"IDR"`
	MerchantID string             `json:"merchant_id"`
	ScanEvents []domain.ScanEvent `json:"scan_events,omitempty"`
}

// ConfirmRequest is the JSON payload for confirming a scanned invoice.
type ConfirmRequest struct {
	Action string `json:"action" binding:"required" enums:"SUCCESS,REJECTED" example:"SUCCESS"`
}

// ConfirmResponse reports the invoice status after confirmation.
type ConfirmResponse struct {
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status" example:"SUCCESS"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListInvoicesResponse wraps a page of invoices and pagination information.
type ListInvoicesResponse struct {
	Invoices   []InvoiceStatusResponse `json:"invoices"`
	Pagination Pagination              `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.ClampInt(utils.AtoiDefault(c.Query("page"), defaultPage), 1, 0)
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

func statusView(inv *domain.Invoice, events []domain.ScanEvent) InvoiceStatusResponse {
	return InvoiceStatusResponse{
		InvoiceID:  inv.ID,
		Status:     inv.Status.String(),
		Policy:     inv.Policy.String(),
		Amount:     inv.Amount,
		Currency:   inv.Currency,
		MerchantID: inv.MerchantID,
		ScanEvents: events,
	}
}

// invoiceID validates the :id path parameter.
func invoiceID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// GenerateQR godoc
// @ID          generateQR
// @Summary     Generate a signed QRIS invoice
// @Description Signs a fingerprint, embeds it in tag 62 of the merchant payload, recomputes the CRC and returns the payload with its QR PNG. Retrying with the same Idempotency-Key returns the original invoice.
// @Tags        QR
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       Idempotency-Key  header  string  false  "Retry key, scoped to merchant_id"  example(order-8812)
// @Param       body             body    handlers.GenerateQRRequest  true  "Invoice to issue"
//
// @Success     201  {object}  handlers.GenerateQRResponse
// @Header      201  {string}  Idempotency-Replayed  "true when served from an earlier request"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or payload"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid API key"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /qr [post]
func (h *Handlers) GenerateQR(c *gin.Context) {
	var req GenerateQRRequest
	// The idempotency middleware may already have read the body.
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var policy domain.Policy
	if strings.TrimSpace(req.Policy) != "" {
		p, err := domain.ParsePolicy(req.Policy)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "policy must be SAFE or FAST")
			return
		}
		policy = p
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.invSvc.Generate(c.Request.Context(), services.GenerateRequest{
		MerchantID:      req.MerchantID,
		MerchantPayload: req.MerchantPayload,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Policy:          policy,
		IdempotencyKey:  key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	ok(c, http.StatusCreated, GenerateQRResponse{
		InvoiceID:      res.Invoice.ID,
		Status:         res.Invoice.Status.String(),
		Payload:        res.Payload.Payload,
		CRC:            res.Payload.CRC,
		QRPNGBase64:    res.QRPNGBase64,
		FingerprintB64: res.Signed.FingerprintB64,
		SignatureHex:   res.Signed.SignatureHex,
		Timestamp:      res.Signed.Timestamp,
		Nonce:          res.Signed.Nonce,
	})
}

// GetInvoice godoc
// @ID          getInvoice
// @Summary     Get invoice status
// @Tags        Invoices
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       id      path   string  true   "Invoice ID (UUID)"  format(uuid)
// @Param       events  query  bool    false  "Include scan events"
//
// @Success     200  {object}  handlers.InvoiceStatusResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Invoice not found"
// @Router      /invoices/{id} [get]
func (h *Handlers) GetInvoice(c *gin.Context) {
	id, valid := invoiceID(c)
	if !valid {
		return
	}
	view, err := h.invSvc.Get(c.Request.Context(), id, sysutil.IsTruthy(c.Query("events")))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, statusView(view.Invoice, view.ScanEvents))
}

// ListInvoices godoc
// @ID          listInvoices
// @Summary     List a merchant's invoices (paginated)
// @Description Returns a page of invoices, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Invoices
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       merchant_id    query   string  true   "Merchant ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListInvoicesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /invoices [get]
func (h *Handlers) ListInvoices(c *gin.Context) {
	ctx := c.Request.Context()
	merchantID := strings.TrimSpace(c.Query("merchant_id"))
	if merchantID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "merchant_id is required")
		return
	}
	page, pageSize := clampPagination(c)

	if etag, ok := h.listETag(ctx, merchantID, page, pageSize); ok {
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.invSvc.ListPage(ctx, merchantID, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}

	views := make([]InvoiceStatusResponse, 0, len(items))
	for i := range items {
		views = append(views, statusView(&items[i], nil))
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListInvoicesResponse{
		Invoices: views,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ConfirmInvoice godoc
// @ID          confirmInvoice
// @Summary     Confirm a scanned invoice
// @Description Applies the merchant's decision. Only legal while the invoice is SCANNED.
// @Tags        Invoices
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       id    path  string  true  "Invoice ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ConfirmRequest  true  "Decision"
//
// @Success     200  {object} handlers.ConfirmResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Invoice not found"
// @Failure     409  {object} handlers.ErrorResponse "Illegal transition"
// @Router      /invoices/{id}/confirm [post]
func (h *Handlers) ConfirmInvoice(c *gin.Context) {
	id, valid := invoiceID(c)
	if !valid {
		return
	}
	var req ConfirmRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action required (SUCCESS or REJECTED)")
		return
	}
	inv, err := h.invSvc.Confirm(c.Request.Context(), id, req.Action)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ConfirmResponse{InvoiceID: inv.ID, Status: inv.Status.String()})
}

// listETag derives a weak ETag for one page of a merchant's invoice list.
func (h *Handlers) listETag(ctx context.Context, merchantID string, page, pageSize int) (string, bool) {
	lv, ok := h.invSvc.(listVersioner)
	if !ok {
		return "", false
	}
	v, err := lv.ListVersion(ctx, merchantID)
	if err != nil {
		return "", false
	}
	var ts int64
	if !v.LastUpdated.IsZero() {
		ts = v.LastUpdated.UnixNano()
	}
	return fmt.Sprintf(`W/"invoices:%s:%d:%d:%d:%d"`, merchantID, v.Count, ts, page, pageSize), true
}
