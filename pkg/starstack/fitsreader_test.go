package starstack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFits assembles a primary HDU from header cards and raw big-endian
// pixel data.
func buildFits(cards []string, data []byte) []byte {
	var buf bytes.Buffer
	for _, c := range cards {
		buf.WriteString(fmt.Sprintf("%-80s", c))
	}
	buf.WriteString(fmt.Sprintf("%-80s", "END"))
	buf.Write(bytes.Repeat([]byte{' '}, padToBlock(buf.Len())))
	buf.Write(data)
	buf.Write(make([]byte, padToBlock(len(data))))
	return buf.Bytes()
}

func TestWriteFitsRoundTrip(t *testing.T) {
	img := renderField(100, 100, testField, 0, 0)
	var buf bytes.Buffer
	require.NoError(t, WriteFits(&buf, img))
	assert.Zero(t, buf.Len()%fitsBlockLen)

	f, err := ReadFitsFromBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 100, f.Width)
	assert.Equal(t, 100, f.Height)
	assert.Equal(t, 8, f.Bitpix)
	assert.Equal(t, "starstack", f.Metadata.GetString("creator"))
	assert.Equal(t, "True", f.Metadata.GetString("SIMPLE"))

	for i, v := range f.Pixels {
		require.Equal(t, float64(img.Pix[i]), v, "pixel %d", i)
	}
}

func TestWriteFitsSubImage(t *testing.T) {
	img := renderField(100, 100, testField, 0, 0)
	sub := img.SubImage(image.Rect(30, 10, 70, 40)).(*image.Gray)

	var buf bytes.Buffer
	require.NoError(t, WriteFits(&buf, sub))
	f, err := ReadFitsFromBytes(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 40, f.Width)
	require.Equal(t, 30, f.Height)
	assert.Equal(t, float64(sub.GrayAt(37, 22).Y), f.Pixels[(22-10)*40+(37-30)])
}

func TestWriteFitsEmptyImage(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteFits(&buf, image.NewGray(image.Rectangle{})))
	assert.Error(t, WriteFits(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestReadFits16BitScaled(t *testing.T) {
	values := []int16{-32768, 0, 32767, -32000, 100, 5}
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[2*i:], uint16(v))
	}
	raw := buildFits([]string{
		"SIMPLE  =                    T",
		"BITPIX  =                   16",
		"NAXIS   =                    2",
		"NAXIS1  =                    3",
		"NAXIS2  =                    2",
		"BZERO   =                32768",
		"BSCALE  =                  1.0",
		"OBJECT  = 'M42     '           / Orion nebula",
		"EXPTIME =                 30.5",
		"BAYERPAT= 'rggb'",
		"COMMENT this card has no value indicator",
	}, data)

	f, err := ReadFitsFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 32768, 65535, 768, 32868, 32773}, f.Pixels)
	assert.Equal(t, "M42", f.Metadata.ObjectName())
	assert.Equal(t, "RGGB", f.Metadata.BayerPattern())
	exp, ok := f.Metadata.ExposureTime()
	require.True(t, ok)
	assert.InDelta(t, 30.5, exp, 1e-12)
	_, ok = f.Metadata.GetDouble("OBJECT")
	assert.False(t, ok)

	g := f.Gray()
	assert.Equal(t, []uint8{0, 128, 255, 3, 128, 128}, g.Pix)
}

func TestReadFitsFloat32(t *testing.T) {
	values := []float32{-1, 0.5, float32(math.NaN()), 3}
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	raw := buildFits([]string{
		"SIMPLE  =                    T",
		"BITPIX  =                  -32",
		"NAXIS   =                    2",
		"NAXIS1  =                    2",
		"NAXIS2  =                    2",
	}, data)

	f, err := ReadFitsFromBytes(raw)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f.Pixels[2]))

	g := f.Gray()
	// stretch over [-1, 3]; NaN maps to 0
	assert.Equal(t, []uint8{0, 96, 0, 255}, g.Pix)
}

func TestReadFitsErrors(t *testing.T) {
	header := func(extra ...string) []string {
		return append([]string{
			"SIMPLE  =                    T",
			"NAXIS   =                    2",
			"NAXIS1  =                    4",
			"NAXIS2  =                    4",
		}, extra...)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"truncated header", []byte("SIMPLE  =                    T")},
		{"unsupported bitpix", buildFits(header("BITPIX  =                   64"), make([]byte, 128))},
		{"bad keyword value", buildFits(header("BITPIX  =                 abc"), nil)},
		{"missing axes", buildFits([]string{"BITPIX  =                    8", "NAXIS   =                    0"}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFitsFromBytes(tt.raw)
			assert.Error(t, err)
		})
	}

	t.Run("truncated data", func(t *testing.T) {
		raw := buildFits(header("BITPIX  =                   16"), make([]byte, 8))
		// drop the padding so fewer than 32 data bytes remain
		_, err := ReadFitsFromBytes(raw[:fitsBlockLen+8])
		assert.Error(t, err)
	})
}

func TestReadFitsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.fits")
	var buf bytes.Buffer
	require.NoError(t, WriteFits(&buf, uniformFrame(8, 4, 77)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	f, err := ReadFits(path)
	require.NoError(t, err)
	assert.Equal(t, 8, f.Width)
	assert.Equal(t, 4, f.Height)

	_, err = ReadFits(filepath.Join(t.TempDir(), "missing.fits"))
	assert.Error(t, err)
}

func TestDebayerRGGB(t *testing.T) {
	const w, h = 8, 6
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch {
			case y%2 == 0 && x%2 == 0:
				data[y*w+x] = 90 // R
			case y%2 == 1 && x%2 == 1:
				data[y*w+x] = 30 // B
			default:
				data[y*w+x] = 60 // G
			}
		}
	}

	out := DebayerRGGB(data, w, h)
	require.Len(t, out, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			assert.InDelta(t, 60, out[y*w+x], 1e-12, "(%d,%d)", x, y)
		}
	}

	flat := DebayerRGGB([]float64{5, 5, 5, 5}, 2, 2)
	assert.Equal(t, []float64{5, 5, 5, 5}, flat)
}

func TestGrayDebayered(t *testing.T) {
	f := &FitsImage{Pixels: []float64{10, 10, 10, 10}, Width: 2, Height: 2, Metadata: NewFitsMetadata()}
	// uniform luminance has no range to stretch
	assert.Equal(t, []uint8{0, 0, 0, 0}, f.GrayDebayered().Pix)
}
