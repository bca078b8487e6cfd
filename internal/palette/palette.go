// Package palette extracts a ranked list of dominant colors from an image.
package palette

import (
	"fmt"
	"image"
	"sort"
)

// Extraction parameters. Sampling is bounded so cost stays flat regardless
// of image size, and channels are quantized so near-duplicate colors merge
// into one bucket.
const (
	// MaxColors is the maximum palette length returned.
	MaxColors = 5

	// MinDimension is the smallest width or height eligible for extraction.
	// Images below it yield no palette at all.
	MinDimension = 12

	// maxSamples bounds how many pixels are read.
	maxSamples = 4000

	// alphaThreshold skips pixels more transparent than this (8-bit scale);
	// they are treated as background.
	alphaThreshold = 128

	// bucketWidth is the quantization step per 8-bit channel. 16 levels per
	// channel keeps visually indistinguishable colors in one bucket.
	bucketWidth = 16
)

// bucket is one quantized RGB cell and its sample frequency.
type bucket struct {
	key   uint32
	count int
}

// Extract returns up to MaxColors dominant colors as uppercase hex strings
// ("#RRGGBB"), most frequent first. It is a pure function: an identical
// pixel buffer always yields an identical palette. Images smaller than
// MinDimension in either axis yield nil.
func Extract(img image.Image) []string {
	if img == nil {
		return nil
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < MinDimension || h < MinDimension {
		return nil
	}

	stride := sampleStride(w, h)

	counts := make(map[uint32]int)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			r, g, b, a := img.At(x, y).RGBA()
			if uint8(a>>8) < alphaThreshold {
				continue
			}
			counts[quantize(uint8(r>>8), uint8(g>>8), uint8(b>>8))]++
		}
	}

	if len(counts) == 0 {
		return nil
	}

	buckets := make([]bucket, 0, len(counts))
	for key, count := range counts {
		buckets = append(buckets, bucket{key: key, count: count})
	}

	// Frequency descending; ties break on the quantized value so the result
	// is deterministic regardless of map iteration order.
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].key < buckets[j].key
	})

	n := len(buckets)
	if n > MaxColors {
		n = MaxColors
	}

	colors := make([]string, n)
	for i := 0; i < n; i++ {
		colors[i] = hexOf(buckets[i].key)
	}
	return colors
}

// sampleStride computes the pixel step so that at most ~maxSamples pixels
// are visited for any image size.
func sampleStride(w, h int) int {
	total := w * h
	if total <= maxSamples {
		return 1
	}
	stride := 1
	for (w/stride)*(h/stride) > maxSamples {
		stride++
	}
	return stride
}

// quantize collapses an RGB triple into its bucket key. Each channel keeps
// its bucket midpoint so the emitted hex color sits in the middle of the
// merged range instead of at its dark edge.
func quantize(r, g, b uint8) uint32 {
	qr := uint32(r) / bucketWidth
	qg := uint32(g) / bucketWidth
	qb := uint32(b) / bucketWidth
	return qr<<16 | qg<<8 | qb
}

func hexOf(key uint32) string {
	half := uint32(bucketWidth / 2)
	r := (key >> 16 & 0xFF) * bucketWidth
	g := (key >> 8 & 0xFF) * bucketWidth
	b := (key & 0xFF) * bucketWidth
	return fmt.Sprintf("#%02X%02X%02X", clamp255(r+half), clamp255(g+half), clamp255(b+half))
}

func clamp255(v uint32) uint32 {
	if v > 255 {
		return 255
	}
	return v
}
