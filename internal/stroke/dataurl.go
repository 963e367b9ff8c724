package stroke

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"
)

const pngDataURLPrefix = "data:image/png;base64,"

// ErrInvalidDataURL is returned when a string is not a base64 image data URL.
var ErrInvalidDataURL = errors.New("stroke: invalid image data URL")

// EncodeDataURL encodes img as a PNG data URL.
func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL decodes a base64 PNG or JPEG data URL.
func DecodeDataURL(s string) (image.Image, error) {
	meta, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(meta, "data:image/") || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrInvalidDataURL
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DataURL renders the pad and encodes it as a PNG data URL. It returns an
// empty string when the pad is empty.
func (p *Pad) DataURL() (string, error) {
	p.mu.Lock()
	img := p.imageLocked()
	p.mu.Unlock()
	if img == nil {
		return "", nil
	}
	return EncodeDataURL(img)
}

// LoadDataURL decodes s and loads it with LoadImage.
func (p *Pad) LoadDataURL(s string) error {
	img, err := DecodeDataURL(s)
	if err != nil {
		return err
	}
	p.LoadImage(img)
	return nil
}
