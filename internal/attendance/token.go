// Package attendance holds the QR scan verification rules and the presence
// matrix aggregation behind attendance reports.
package attendance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// ErrMalformedPayload is returned when a scanned payload is not a QR token.
var ErrMalformedPayload = errors.New("malformed qr payload")

type tokenPayload struct {
	SessionID  *string         `json:"sessionId"`
	CourseID   *string         `json:"courseId"`
	CourseCode *string         `json:"courseCode"`
	ExpiresAt  json.RawMessage `json:"expiresAt"`
}

// ParseToken decodes a raw QR payload into a validated token. Only courseId is
// required. sessionId is optional; tokens without it are matched to the
// course's open session after verification. expiresAt may be an RFC 3339
// string or epoch milliseconds and is optional.
func ParseToken(raw string) (*models.QRToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	var payload tokenPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.CourseID == nil || strings.TrimSpace(*payload.CourseID) == "" {
		return nil, fmt.Errorf("%w: courseId missing", ErrMalformedPayload)
	}
	token := &models.QRToken{CourseID: *payload.CourseID}
	if payload.SessionID != nil {
		token.SessionID = strings.TrimSpace(*payload.SessionID)
	}
	if payload.CourseCode != nil {
		token.CourseCode = *payload.CourseCode
	}
	expiresAt, err := parseExpiry(payload.ExpiresAt)
	if err != nil {
		return nil, err
	}
	token.ExpiresAt = expiresAt
	return token, nil
}

func parseExpiry(raw json.RawMessage) (*time.Time, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return nil, fmt.Errorf("%w: expiresAt: %v", ErrMalformedPayload, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("%w: expiresAt: %v", ErrMalformedPayload, err)
		}
		ts = ts.UTC()
		return &ts, nil
	}
	var millis json.Number
	if err := json.Unmarshal(trimmed, &millis); err != nil {
		return nil, fmt.Errorf("%w: expiresAt: %v", ErrMalformedPayload, err)
	}
	ms, err := millis.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: expiresAt: %v", ErrMalformedPayload, err)
	}
	ts := time.UnixMilli(ms).UTC()
	return &ts, nil
}

// IsValid reports whether the token may still be used at now.
// A token without expiry never expires.
func IsValid(token *models.QRToken, now time.Time) bool {
	if token == nil {
		return false
	}
	if token.ExpiresAt == nil {
		return true
	}
	return now.Before(*token.ExpiresAt)
}

// EncodeToken renders the payload printed into an issued QR code.
func EncodeToken(token models.QRToken) (string, error) {
	if token.CourseID == "" || token.SessionID == "" {
		return "", fmt.Errorf("encode qr token: courseId and sessionId required")
	}
	if token.ExpiresAt != nil {
		utc := token.ExpiresAt.UTC()
		token.ExpiresAt = &utc
	}
	data, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("encode qr token: %w", err)
	}
	return string(data), nil
}
