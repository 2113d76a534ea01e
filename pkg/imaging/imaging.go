// Package imaging normalises uploaded garment photos before they are stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxDimension bounds the longest edge of a stored photo.
	DefaultMaxDimension = 1024
	// DefaultJPEGQuality is the re-encode quality.
	DefaultJPEGQuality = 85
)

// ErrUnsupportedFormat is returned when the sniffed content type is not an accepted image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Options tunes Process.
type Options struct {
	MaxDimension int
	Quality      int
}

// Result contains the processed photo.
type Result struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Process sniffs the real content type, downscales photos whose longest edge
// exceeds opts.MaxDimension and re-encodes everything as JPEG.
func Process(r io.Reader, opts Options) (*Result, error) {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultJPEGQuality
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	detected := http.DetectContentType(data)
	if !allowedMIME[detected] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	img = downscale(img, opts.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	bounds := img.Bounds()
	return &Result{
		Data:   buf.Bytes(),
		MIME:   "image/jpeg",
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}
	newW = max(newW, 1)
	newH = max(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
