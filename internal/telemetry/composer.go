package telemetry

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"sync"
)

// ErrNotReady is returned by Compose before the first image is published.
var ErrNotReady = errors.New("telemetry: no image published yet")

// PoseSource supplies the robot pose for the "map" key.
type PoseSource interface {
	Coordinates() (x, y float64)
	Heading() float64
}

// FrameSource produces the next outbound frame.
type FrameSource interface {
	Compose() (*Frame, error)
}

// Composer snapshots the frame buffer, pose and overlays into one Frame.
// The PNG encoding of an image is cached until a newer one is published.
type Composer struct {
	images   *FrameBuffer
	pose     PoseSource
	overlays []OverlayProducer

	mu        sync.Mutex
	cachedSeq uint64
	cached    ImagePayload
	encoder   png.Encoder
}

// NewComposer builds a composer over the given sources.
func NewComposer(images *FrameBuffer, pose PoseSource, overlays ...OverlayProducer) *Composer {
	return &Composer{
		images:   images,
		pose:     pose,
		overlays: overlays,
		encoder:  png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

// Compose returns the current frame or ErrNotReady.
func (c *Composer) Compose() (*Frame, error) {
	snap, seq, ok := c.images.Snapshot()
	if !ok {
		return nil, ErrNotReady
	}

	img, err := c.encodeImage(snap, seq)
	if err != nil {
		return nil, err
	}

	x, y := c.pose.Coordinates()
	frame := &Frame{
		Image:    img,
		Map:      []float64{x, y, c.pose.Heading()},
		Overlays: make(map[string]*string, len(c.overlays)),
	}
	for _, o := range c.overlays {
		if s, ok := o.Overlay(); ok {
			frame.Overlays[o.Key()] = &s
		} else {
			frame.Overlays[o.Key()] = nil
		}
	}
	return frame, nil
}

func (c *Composer) encodeImage(snap ImageFrame, seq uint64) (ImagePayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq == c.cachedSeq && c.cached.Image != "" {
		return c.cached, nil
	}

	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, snap.Image); err != nil {
		return ImagePayload{}, fmt.Errorf("encode png: %w", err)
	}
	c.cached = ImagePayload{
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Shape: []int{snap.Shape[0], snap.Shape[1], snap.Shape[2]},
	}
	c.cachedSeq = seq
	return c.cached, nil
}
