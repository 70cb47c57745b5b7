package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-api/internal/dto"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
	"github.com/noah-isme/qr-attendance-api/pkg/response"
)

type scanService interface {
	Scan(ctx context.Context, studentID string, req dto.ScanRequest) (*dto.ScanResponse, error)
}

// AttendanceHandler exposes the student scan endpoint.
type AttendanceHandler struct {
	service scanService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(service scanService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Scan godoc
// @Summary Mark attendance by scanning a QR code
// @Description Verifies the scanned QR payload for the selected course. A repeated scan returns status already_scanned.
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ScanRequest true "Scanned QR payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /attendance/scan [post]
func (h *AttendanceHandler) Scan(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrMalformedPayload, "Invalid QR code format"))
		return
	}
	res, err := h.service.Scan(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if res.Status == dto.ScanStatusAlreadyScanned {
		status = http.StatusOK
	}
	response.JSON(c, status, res)
}
