package export

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRExporter renders payloads as PNG QR codes.
type QRExporter struct {
	size  int
	level qrcode.RecoveryLevel
}

// NewQRExporter constructs a renderer producing size x size images.
func NewQRExporter(size int) *QRExporter {
	if size <= 0 {
		size = 256
	}
	return &QRExporter{size: size, level: qrcode.Medium}
}

// Render encodes payload into a PNG image.
func (e *QRExporter) Render(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qr payload required")
	}
	png, err := qrcode.Encode(payload, e.level, e.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
