// Package imageprep resizes and re-encodes images to the constraints a vendor expects.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/platinummonkey/pastemark/internal/apperrors"
)

// Format is an in-process encoder output format
type Format string

const (
	FormatWebP Format = "webp"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// MimeType returns the MIME type for the format
func (f Format) MimeType() string {
	return "image/" + string(f)
}

// Encoding selects how the encoded bytes are handed to the caller
type Encoding string

const (
	// EncodingRaw returns the encoded bytes unchanged
	EncodingRaw Encoding = "raw"

	// EncodingBase64 returns standard base64 without a prefix
	EncodingBase64 Encoding = "base64"

	// EncodingDataURL returns a data: URL
	EncodingDataURL Encoding = "data-url"
)

// DefaultQuality is the lossy quality used for vendor payloads
const DefaultQuality = 90

// Spec describes the image a vendor accepts
type Spec struct {
	// MaxDimensions caps each axis
	MaxDimensions int

	// MaxPixels caps width*height
	MaxPixels int

	// Format is the re-encode target
	Format Format

	// Encoding is the wire encoding of the payload
	Encoding Encoding
}

// Payload is a preprocessed image ready to queue on an adapter
type Payload struct {
	Width    int
	Height   int
	MimeType string
	// Bytes holds the encoded image
	Bytes []byte
	// Encoded holds the base64 or data-URL form; empty for EncodingRaw
	Encoded string
}

// TargetSize computes the output dimensions for an image of w×h under spec.
// It never upscales and preserves the aspect ratio within rounding.
func TargetSize(w, h int, spec Spec) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}

	fw, fh := float64(w), float64(h)

	if spec.MaxPixels > 0 && w*h > spec.MaxPixels {
		scale := math.Sqrt(float64(spec.MaxPixels) / (fw * fh))
		fw *= scale
		fh *= scale
	}

	if maxDim := float64(spec.MaxDimensions); maxDim > 0 {
		if fw > maxDim {
			fh = fh * maxDim / fw
			fw = maxDim
		}
		if fh > maxDim {
			fw = fw * maxDim / fh
			fh = maxDim
		}
	}

	nw := int(math.Max(1, math.Floor(fw)))
	nh := int(math.Max(1, math.Floor(fh)))

	if nw == w && nh == h {
		return w, h
	}

	// flooring can push the shorter side off the ratio by more than a pixel; use the
	// nearest height for the chosen width when it still satisfies both caps
	if rh := int(math.Round(float64(nw) * float64(h) / float64(w))); rh >= 1 && rh != nh {
		if (spec.MaxPixels <= 0 || nw*rh <= spec.MaxPixels) && (spec.MaxDimensions <= 0 || rh <= spec.MaxDimensions) {
			nh = rh
		}
	}

	return nw, nh
}

// Decode decodes raw image bytes in any registered format
func Decode(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, apperrors.NewImageDecodeError("empty image data", nil)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.NewImageDecodeError("failed to decode image", err)
	}
	return img, nil
}

// Encode encodes img in the given format. quality applies to WebP and JPEG.
func Encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(clampQuality(quality))}); err != nil {
			return nil, fmt.Errorf("failed to encode WebP: %w", err)
		}
	case FormatJPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(quality))); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	return buf.Bytes(), nil
}

// Transcode decodes raw bytes and re-encodes them at full size
func Transcode(raw []byte, format Format, quality int) ([]byte, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Encode(img, format, quality)
}

// Process decodes raw, resizes it to fit spec and re-encodes it in the spec's format and encoding
func Process(raw []byte, spec Spec) (*Payload, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	w, h := TargetSize(bounds.Dx(), bounds.Dy(), spec)
	if w != bounds.Dx() || h != bounds.Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	data, err := Encode(img, spec.Format, DefaultQuality)
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		Width:    w,
		Height:   h,
		MimeType: spec.Format.MimeType(),
		Bytes:    data,
	}

	switch spec.Encoding {
	case EncodingBase64:
		payload.Encoded = base64.StdEncoding.EncodeToString(data)
	case EncodingDataURL:
		payload.Encoded = DataURL(payload.MimeType, data)
	case EncodingRaw, "":
	default:
		return nil, fmt.Errorf("unsupported payload encoding: %s", spec.Encoding)
	}

	return payload, nil
}

// DataURL builds a base64 data: URL
func DataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
