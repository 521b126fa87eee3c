// Scan callback handler.
//
// Wallets call POST /scan with the tag 62 fields they read from the QR. The
// verifier decides the outcome; this handler only binds and maps.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/qriscuy/internal/services"
)

// ScanRequest is the JSON payload of a scan callback.
type ScanRequest struct {
	FingerprintB64 string         `json:"fingerprint_b64" binding:"required"`
	SignatureHex   string         `json:"signature_hex" binding:"required"`
	Timestamp      int64          `json:"timestamp" binding:"required" example:"1760000000"`
	Nonce          string         `json:"nonce" binding:"required"`
	DeviceID       string         `json:"device_id,omitempty" example:"pos-7"`
	ClientMeta     map[string]any `json:"client_meta,omitempty"`
}

// ScanResponse reports the invoice state after an accepted scan.
type ScanResponse struct {
	InvoiceID     string `json:"invoice_id"`
	Status        string `json:"status" example:"SCANNED"`
	StatusChanged bool   `json:"status_changed"`
}

// Scan godoc
// @ID          scan
// @Summary     Verify a scan callback
// @Description Verifies the fingerprint signature, nonce, timestamp and TTL, then moves the invoice to SCANNED (SAFE) or SUCCESS (FAST). A second scan of the same invoice is rejected with ERR_REPLAY.
// @Tags        Scan
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       body  body  handlers.ScanRequest  true  "Fields read from tag 62"
//
// @Success     200  {object} handlers.ScanResponse
// @Failure     400  {object} handlers.ErrorResponse "ERR_BAD_PAYLOAD"
// @Failure     401  {object} handlers.ErrorResponse "ERR_SIG_INVALID or invalid API key"
// @Failure     409  {object} handlers.ErrorResponse "ERR_REPLAY"
// @Failure     410  {object} handlers.ErrorResponse "ERR_FP_EXPIRED"
// @Router      /scan [post]
func (h *Handlers) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadPayload, "fingerprint_b64, signature_hex, timestamp and nonce are required")
		return
	}

	res, err := h.scanSvc.HandleScan(c.Request.Context(), services.ScanRequest{
		FingerprintB64: strings.TrimSpace(req.FingerprintB64),
		SignatureHex:   strings.TrimSpace(req.SignatureHex),
		Timestamp:      req.Timestamp,
		Nonce:          strings.TrimSpace(req.Nonce),
		DeviceID:       strings.TrimSpace(req.DeviceID),
		ClientMeta:     req.ClientMeta,
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ScanResponse{
		InvoiceID:     res.InvoiceID,
		Status:        res.Status.String(),
		StatusChanged: res.StatusChanged,
	})
}
