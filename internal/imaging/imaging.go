// Package imaging covers the image plumbing around inference: decode and
// bounded downscale, temp-file handoff to the detector, contrast
// enhancement for address crops, and the tiling grid for the fallback
// pipeline.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
)

// Decode parses PNG/JPEG bytes and downscales the result so it carries at
// most maxPixels, preserving aspect ratio.
func Decode(raw []byte, maxPixels int) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return Downscale(img, maxPixels), nil
}

// Downscale resizes img to fit within maxPixels using Catmull-Rom
// resampling. Images already within budget are returned unchanged.
func Downscale(img image.Image, maxPixels int) image.Image {
	if maxPixels <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pixels := w * h
	if pixels <= maxPixels {
		return img
	}
	scale := math.Sqrt(float64(maxPixels) / float64(pixels))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	log.Printf("[img] large image: %dx%d (%d px), resizing to %dx%d", w, h, pixels, nw, nh)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// SaveTemp writes img as PNG to a uniquely named file in the OS temp dir,
// for handoff to the object detector. The caller owns deletion.
func SaveTemp(img image.Image) (string, error) {
	path := filepath.Join(os.TempDir(), "contaluz-"+uuid.NewString()+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating temp image: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := png.Encode(f, img); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("encoding temp image: %w", err)
	}
	return path, nil
}

// EncodePNG renders img to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG renders img to JPEG bytes at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads and decodes an image file without a pixel budget.
func Load(path string) (image.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// EnhanceContrast scales pixel distance from mid-gray by factor. Address
// crops read noticeably better around 1.3.
func EnhanceContrast(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			dst.Pix[dst.PixOffset(x, y)+0] = stretch(r, factor)
			dst.Pix[dst.PixOffset(x, y)+1] = stretch(g, factor)
			dst.Pix[dst.PixOffset(x, y)+2] = stretch(bl, factor)
			dst.Pix[dst.PixOffset(x, y)+3] = uint8(a >> 8)
		}
	}
	return dst
}

func stretch(c uint32, factor float64) uint8 {
	v := (float64(c>>8)-128)*factor + 128
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
