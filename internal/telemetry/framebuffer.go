package telemetry

import (
	"image"
	"image/draw"
	"time"
)

// Channels is the channel count of every published frame. Images that would
// not encode as opaque RGB are promoted on publish.
const Channels = 3

// ImageFrame is one published camera image together with its shape.
type ImageFrame struct {
	Image     image.Image
	Shape     [3]int // height, width, channels
	Published time.Time
}

// FrameBuffer holds the latest camera image. The producer overwrites it at
// its own rate; the pacer samples whatever is current when it composes.
type FrameBuffer struct {
	slot Slot[ImageFrame]
}

// NewFrameBuffer returns an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// PublishImage replaces the current image. The caller must not modify img
// afterwards. A nil image clears the buffer.
func (b *FrameBuffer) PublishImage(img image.Image) uint64 {
	if img == nil {
		b.slot.Clear()
		return 0
	}
	img = promote(img)
	bounds := img.Bounds()
	return b.slot.Store(ImageFrame{
		Image:     img,
		Shape:     [3]int{bounds.Dy(), bounds.Dx(), Channels},
		Published: time.Now(),
	})
}

// Snapshot returns the current image and its sequence number. ok is false
// until the first publish.
func (b *FrameBuffer) Snapshot() (frame ImageFrame, seq uint64, ok bool) {
	return b.slot.Load()
}

// Clear drops the current image.
func (b *FrameBuffer) Clear() {
	b.slot.Clear()
}

// Overwrites counts images replaced before the pacer sampled them.
func (b *FrameBuffer) Overwrites() uint64 {
	return b.slot.Overwrites()
}

// promote redraws anything the PNG encoder would not write as 8-bit RGB
// (grayscale, paletted, translucent) onto an opaque black RGBA canvas.
func promote(img image.Image) image.Image {
	switch m := img.(type) {
	case *image.RGBA:
		if m.Opaque() {
			return img
		}
	case *image.NRGBA:
		if m.Opaque() {
			return img
		}
	case *image.YCbCr:
		return img
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Over)
	return rgba
}
