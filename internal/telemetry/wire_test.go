package telemetry

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{-2, "-2.0"},
		{0.5, "0.5"},
		{0.1, "0.1"},
		{-0.25, "-0.25"},
		{123456789, "123456789.0"},
		{3.14159, "3.14159"},
		{1e-5, "1e-05"},
		{1e16, "1e+16"},
		{0.0001, "0.0001"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("FormatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumbers(t *testing.T) {
	assert.Equal(t, "[1.0, 2.5, -0.25]", FormatNumbers([]float64{1, 2.5, -0.25}))
	assert.Equal(t, "[]", FormatNumbers(nil))
}

func TestParseNumbers_RoundTrip(t *testing.T) {
	inputs := [][]float64{
		{},
		{0},
		{1.25, -3.5, 0.1},
		{12.5, 7, 1.5707963267948966},
		{1e-7, 2e20, -0.0001},
	}
	for _, in := range inputs {
		got, err := ParseNumbers(FormatNumbers(in))
		require.NoError(t, err)
		if diff := cmp.Diff(in, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestParseNumbers_Malformed(t *testing.T) {
	for _, in := range []string{"", "1, 2", "[1, x]", "[1,, 2]", "[", "{1, 2}"} {
		_, err := ParseNumbers(in)
		assert.ErrorIs(t, err, ErrMalformedNumbers, "input %q", in)
	}
}

func TestFormatPath(t *testing.T) {
	assert.Equal(t, "[]", FormatPath(nil))
	assert.Equal(t, "[[1.0, 2.0],[3.5, 4.0]]", FormatPath([][2]float64{{1, 2}, {3.5, 4}}))
}

func TestFormatGrid(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{0, 1, 2, 3, 0.5, 255})
	assert.Equal(t, "[[0, 1, 2], [3, 0.5, 255]]", FormatGrid(m))
}

func TestFrameEncode(t *testing.T) {
	path := "[[1.0, 2.0]]"
	f := &Frame{
		Image:    ImagePayload{Image: "aGVsbG8=", Shape: []int{2, 3, 3}},
		Map:      []float64{1, 2, 0.5},
		Overlays: map[string]*string{KeyPath: &path, KeyNav: nil},
	}

	text, err := f.Encode()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(text, GUIPrefix))

	var outer map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(text, GUIPrefix)), &outer))

	imageText, ok := outer[KeyImage].(string)
	require.True(t, ok, "image must be a JSON string, got %T", outer[KeyImage])
	var inner ImagePayload
	require.NoError(t, json.Unmarshal([]byte(imageText), &inner))
	if diff := cmp.Diff(f.Image, inner); diff != "" {
		t.Errorf("image payload mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "[1.0, 2.0, 0.5]", outer[KeyMap])
	assert.Equal(t, path, outer[KeyPath])
	v, present := outer[KeyNav]
	assert.True(t, present, "unset overlay must still be present")
	assert.Nil(t, v)
}

func jsonUnmarshalFrame(text string, v any) error {
	return json.Unmarshal([]byte(strings.TrimPrefix(text, GUIPrefix)), v)
}
