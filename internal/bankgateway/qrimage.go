package bankgateway

import (
	"fmt"

	qrc "github.com/skip2/go-qrcode"
)

// RenderImage produces a PNG rendering of the QR payload for banks that
// return only an id. Size is the image edge length in pixels.
func RenderImage(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qr payload cannot be empty")
	}
	if size <= 0 {
		size = 256
	}

	png, err := qrc.Encode(payload, qrc.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr image: %w", err)
	}
	return png, nil
}
