// Package renderable produces derived visual assets for cards: resized
// thumbnails and decoded source images for palette extraction.
package renderable

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Register decoders for the source formats the pipeline accepts.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// MaxThumbnailEdge is the longest edge of a generated thumbnail. Sources
// already at or below it are used as-is, no resize.
const MaxThumbnailEdge = 512

// jpegQuality for encoded thumbnails.
const jpegQuality = 85

// ErrUndecodable is returned when the source blob is not a supported image.
var ErrUndecodable = errors.New("source is not a decodable image")

// Decode reads and decodes an image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, nil
}

// Thumbnail scales img down so its longest edge is MaxThumbnailEdge,
// preserving aspect ratio. Returns the original image and false when the
// source is already small enough, so callers can skip re-encoding.
func Thumbnail(img image.Image) (image.Image, bool) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= MaxThumbnailEdge && h <= MaxThumbnailEdge {
		return img, false
	}

	var tw, th int
	if w >= h {
		tw = MaxThumbnailEdge
		th = h * MaxThumbnailEdge / w
	} else {
		th = MaxThumbnailEdge
		tw = w * MaxThumbnailEdge / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst, true
}

// EncodeJPEG serializes img as a JPEG suitable for thumbnail storage.
func EncodeJPEG(img image.Image) (io.Reader, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return &buf, nil
}
