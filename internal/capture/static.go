package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/smileboard/internal/adapters/detection"
	"github.com/okian/smileboard/internal/domain/model"
)

// StaticDevice serves one fixed image as every frame.
type StaticDevice struct {
	load func() (model.Image, error)

	mu     sync.Mutex
	img    model.Image
	opened bool
}

// NewStaticDevice serves img.
func NewStaticDevice(img model.Image) *StaticDevice {
	return &StaticDevice{load: func() (model.Image, error) { return img, nil }}
}

// NewStaticFileDevice serves the image at path, loaded on Acquire.
func NewStaticFileDevice(path string, opts detection.EncodeOptions) *StaticDevice {
	return &StaticDevice{load: func() (model.Image, error) { return detection.LoadImageFile(path, opts) }}
}

// Acquire loads the image, failing when it cannot be read.
func (d *StaticDevice) Acquire(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.load()
	if err != nil || len(img.Data) == 0 {
		return false
	}
	d.img = img
	d.opened = true
	return true
}

// ReadFrame returns the image.
func (d *StaticDevice) ReadFrame(context.Context) (model.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return model.Image{}, fmt.Errorf("static device: %w", ErrNoFrame)
	}
	return d.img, nil
}

// Release closes the device.
func (d *StaticDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}
