package detection

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/okian/smileboard/internal/domain/model"
)

// ContentTypeJPEG is the content type of every normalized image.
const ContentTypeJPEG = "image/jpeg"

// Default encoding parameters.
const (
	DefaultJPEGQuality = 85
	DefaultMaxWidth    = 1280
)

// SupportedExtensions lists the upload extensions accepted by LoadImageFile.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".bmp"}

func init() {
	// x/image/bmp does not self-register.
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
}

// EncodeOptions controls normalization.
type EncodeOptions struct {
	// MaxWidth downsizes wider images preserving aspect ratio; <= 0 disables.
	MaxWidth int
	// Quality is the JPEG quality, 1..100.
	Quality int
}

func (o EncodeOptions) quality() int {
	if o.Quality < 1 || o.Quality > 100 {
		return DefaultJPEGQuality
	}
	return o.Quality
}

// IsSupported reports whether path has an accepted image extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// LoadImageFile reads an image file and normalizes it to JPEG.
// Read failures are returned as-is (matching fs errors); bad extensions and
// undecodable content wrap ErrImage.
func LoadImageFile(path string, opts EncodeOptions) (model.Image, error) {
	if !IsSupported(path) {
		return model.Image{}, fmt.Errorf("%w: %s", ErrImage, filepath.Ext(path))
	}
	data, err := os.ReadFile(path) //nolint:gosec // user-selected upload
	if err != nil {
		return model.Image{}, fmt.Errorf("read image: %w", err)
	}
	img, err := Normalize(data, opts)
	if err != nil {
		return model.Image{}, err
	}
	img.Name = filepath.Base(path)
	return img, nil
}

// Normalize decodes PNG, JPEG or BMP data and re-encodes it as JPEG.
func Normalize(data []byte, opts EncodeOptions) (model.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Image{}, fmt.Errorf("%w: decode: %v", ErrImage, err)
	}
	out, err := EncodeJPEG(src, opts)
	if err != nil {
		return model.Image{}, err
	}
	return model.Image{Data: out, ContentType: ContentTypeJPEG}, nil
}

// EncodeJPEG downsizes img if needed and encodes it.
func EncodeJPEG(img image.Image, opts EncodeOptions) ([]byte, error) {
	img = Downscale(img, opts.MaxWidth)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.quality()}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrImage, err)
	}
	return buf.Bytes(), nil
}

// Downscale returns img scaled to maxWidth when it is wider.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
