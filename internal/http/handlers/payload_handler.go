// Payload inspection handler.
//
// POST /payloads/inspect decodes a QRIS payload for support and integration
// debugging: its TLV items, whether the CRC holds, and the fingerprint in
// tag 62 when present. Nothing is persisted and no signature is checked.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/qriscuy/internal/emv"
)

// InspectRequest carries the payload to decode.
type InspectRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// InspectResponse describes a decoded payload.
type InspectResponse struct {
	Items       []emv.Item `json:"items"`
	CRC         string     `json:"crc,omitempty"`
	ExpectedCRC string     `json:"expected_crc,omitempty"`
	CRCValid    bool       `json:"crc_valid"`
	Fingerprint *emv.Tag62 `json:"fingerprint,omitempty"`
}

// InspectPayload godoc
// @ID          inspectPayload
// @Summary     Decode a QRIS payload
// @Tags        Payloads
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       body  body  handlers.InspectRequest  true  "Payload to decode"
//
// @Success     200  {object} handlers.InspectResponse
// @Failure     400  {object} handlers.ErrorResponse "ERR_BAD_PAYLOAD"
// @Router      /payloads/inspect [post]
func (h *Handlers) InspectPayload(c *gin.Context) {
	var req InspectRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payload required")
		return
	}

	items, err := emv.Parse(req.Payload)
	if err != nil {
		failErr(c, err)
		return
	}
	if len(items) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadPayload, "payload is empty")
		return
	}
	resp := InspectResponse{Items: items}

	if last := items[len(items)-1]; last.Tag == emv.TagCRC {
		resp.CRC = last.Value
		resp.ExpectedCRC = emv.Checksum(req.Payload[:len(req.Payload)-len(last.Value)])
		resp.CRCValid = emv.VerifyChecksum(req.Payload) == nil
	}

	// A tag 62 that is not a fingerprint sub-record is reported only as an item.
	if fp, err := emv.ExtractFingerprint(req.Payload); err == nil {
		resp.Fingerprint = &fp
	}
	ok(c, http.StatusOK, resp)
}
