package services

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrCodeSize = 256

// QREncoder turns a URL into a PNG image.
type QREncoder interface {
	Encode(content string) ([]byte, error)
}

type PNGQREncoder struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewPNGQREncoder() *PNGQREncoder {
	return &PNGQREncoder{Size: qrCodeSize, Level: qrcode.Medium}
}

func (e *PNGQREncoder) Encode(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, e.Level, e.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// FeedbackURL is the public form a restaurant's QR code points at.
func FeedbackURL(formURL, restaurantID string) string {
	return fmt.Sprintf("%s/feedback/%s", formURL, restaurantID)
}
