package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-api/internal/dto"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
	"github.com/noah-isme/qr-attendance-api/pkg/response"
)

type sessionService interface {
	Issue(ctx context.Context, courseID, actorID string, req dto.IssueSessionRequest) (*dto.SessionResponse, error)
	List(ctx context.Context, courseID string) ([]dto.SessionResponse, error)
	QRImage(ctx context.Context, sessionID string) ([]byte, error)
}

// SessionHandler exposes lecturer QR issuance endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service sessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Issue godoc
// @Summary Issue a QR attendance session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.IssueSessionRequest false "Session options"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/sessions [post]
func (h *SessionHandler) Issue(c *gin.Context) {
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req dto.IssueSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid session payload"))
		return
	}
	res, err := h.service.Issue(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List a course's attendance sessions
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, response.Meta{"count": len(items)})
}

// QRImage godoc
// @Summary QR code image for a session
// @Tags Sessions
// @Produce png
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Router /sessions/{id}/qr.png [get]
func (h *SessionHandler) QRImage(c *gin.Context) {
	png, err := h.service.QRImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
