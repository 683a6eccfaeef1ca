package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Message prefixes on the viewer channel.
const (
	GUIPrefix  = "#gui"
	AckPrefix  = "#ack"
	PickPrefix = "#pick"
)

// Payload keys.
const (
	KeyImage = "image"
	KeyMap   = "map"
	KeyPath  = "array"
	KeyNav   = "nav"
)

// ErrMalformedNumbers is returned by ParseNumbers for input that is not a
// bracketed list of numbers.
var ErrMalformedNumbers = errors.New("telemetry: malformed number list")

// ImagePayload is the inner object of the "image" key. It travels as a JSON
// string inside the outer object, so the viewer parses it twice.
type ImagePayload struct {
	Image string `json:"image"`
	Shape []int  `json:"shape"`
}

// Frame is one composed outbound update.
type Frame struct {
	Image    ImagePayload
	Map      []float64
	Overlays map[string]*string // nil value encodes as null
}

// Encode serialises the frame as "#gui" followed by a JSON object.
func (f *Frame) Encode() (string, error) {
	inner, err := json.Marshal(f.Image)
	if err != nil {
		return "", fmt.Errorf("encode image payload: %w", err)
	}

	payload := make(map[string]any, 2+len(f.Overlays))
	payload[KeyImage] = string(inner)
	payload[KeyMap] = FormatNumbers(f.Map)
	for key, value := range f.Overlays {
		if value == nil {
			payload[key] = nil
			continue
		}
		payload[key] = *value
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return GUIPrefix + string(body), nil
}

// FormatFloat renders v the way the viewer's parser expects: shortest
// round-trip digits, always with a decimal point or exponent.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	abs := math.Abs(v)
	if abs < 1e-4 || abs >= 1e16 {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// FormatNumbers renders a flat list as "[a, b, c]".
func FormatNumbers(values []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(FormatFloat(v))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseNumbers is the inverse of FormatNumbers.
func ParseNumbers(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, ErrMalformedNumbers
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float64{}, nil
	}

	parts := strings.Split(body, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedNumbers, part)
		}
		values = append(values, v)
	}
	return values, nil
}

// FormatPath renders waypoints as "[[x, y],[x, y]]".
func FormatPath(points [][2]float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range points {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		b.WriteString(FormatFloat(p[0]))
		b.WriteString(", ")
		b.WriteString(FormatFloat(p[1]))
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}

// FormatGrid renders a matrix row by row as "[[a, b], [c, d]]". Integral
// cells are written without a decimal point.
func FormatGrid(m mat.Matrix) string {
	rows, cols := m.Dims()
	var b strings.Builder
	b.WriteByte('[')
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('[')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			v := m.At(r, c)
			if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
				b.WriteString(strconv.FormatInt(int64(v), 10))
			} else {
				b.WriteString(FormatFloat(v))
			}
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}
