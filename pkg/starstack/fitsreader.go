package starstack

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	fitsRecordLen = 80
	fitsBlockLen  = 2880
)

// FitsMetadata holds parsed FITS header key-value pairs.
type FitsMetadata struct {
	Headers map[string]string
}

// NewFitsMetadata creates an empty FitsMetadata.
func NewFitsMetadata() *FitsMetadata {
	return &FitsMetadata{Headers: make(map[string]string)}
}

func (m *FitsMetadata) GetString(key string) string {
	return m.Headers[strings.ToUpper(key)]
}

func (m *FitsMetadata) GetDouble(key string) (float64, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (m *FitsMetadata) ObjectName() string { return m.GetString("OBJECT") }
func (m *FitsMetadata) Filter() string     { return m.GetString("FILTER") }

// BayerPattern returns the colour filter array layout, empty for mono data.
func (m *FitsMetadata) BayerPattern() string { return strings.ToUpper(m.GetString("BAYERPAT")) }

func (m *FitsMetadata) ExposureTime() (float64, bool) {
	if v, ok := m.GetDouble("EXPTIME"); ok {
		return v, true
	}
	return m.GetDouble("EXPOSURE")
}

// FitsImage is the primary HDU of a FITS file with physical pixel values
// (BZERO and BSCALE applied), row-major, first row first.
type FitsImage struct {
	Pixels   []float64
	Width    int
	Height   int
	Bitpix   int
	Metadata *FitsMetadata
}

// ReadFits reads FITS headers and pixel data from a file.
func ReadFits(filePath string) (*FitsImage, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return readFitsFromReader(bufio.NewReader(f))
}

// ReadFitsFromBytes reads FITS headers and pixel data from a byte slice.
func ReadFitsFromBytes(data []byte) (*FitsImage, error) {
	return readFitsFromReader(bytes.NewReader(data))
}

func readFitsFromReader(r io.Reader) (*FitsImage, error) {
	var bitpix, naxis, width, height int
	bzero := 0.0
	bscale := 1.0
	metadata := NewFitsMetadata()

	block := make([]byte, fitsBlockLen)
	headerDone := false
	for !headerDone {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("reading FITS header block: %w", err)
		}
		for off := 0; off < fitsBlockLen; off += fitsRecordLen {
			record := string(block[off : off+fitsRecordLen])
			keyword := strings.TrimSpace(record[:8])
			if keyword == "END" {
				headerDone = true
				break
			}
			if record[8] != '=' || record[9] != ' ' {
				continue
			}

			rawValue := strings.TrimSpace(strings.SplitN(record[10:], "/", 2)[0])
			if v := parseFitsValue(rawValue); keyword != "" && v != "" {
				metadata.Headers[strings.ToUpper(keyword)] = v
			}

			var err error
			switch keyword {
			case "BITPIX":
				bitpix, err = strconv.Atoi(rawValue)
			case "NAXIS":
				naxis, err = strconv.Atoi(rawValue)
			case "NAXIS1":
				width, err = strconv.Atoi(rawValue)
			case "NAXIS2":
				height, err = strconv.Atoi(rawValue)
			case "BZERO":
				bzero, err = strconv.ParseFloat(rawValue, 64)
			case "BSCALE":
				bscale, err = strconv.ParseFloat(rawValue, 64)
			}
			if err != nil {
				return nil, fmt.Errorf("invalid FITS keyword %s=%q: %w", keyword, rawValue, err)
			}
		}
	}

	if naxis < 2 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid FITS: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", naxis, width, height)
	}

	var bytesPerPixel int
	switch bitpix {
	case 8:
		bytesPerPixel = 1
	case 16:
		bytesPerPixel = 2
	case 32, -32:
		bytesPerPixel = 4
	default:
		return nil, fmt.Errorf("unsupported BITPIX: %d", bitpix)
	}

	numPixels := width * height
	raw := make([]byte, numPixels*bytesPerPixel)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading %d-bit pixel data: %w", bitpix, err)
	}

	pixels := make([]float64, numPixels)
	for i := range pixels {
		var v float64
		switch bitpix {
		case 8:
			v = float64(raw[i])
		case 16:
			v = float64(int16(binary.BigEndian.Uint16(raw[i*2:])))
		case 32:
			v = float64(int32(binary.BigEndian.Uint32(raw[i*4:])))
		case -32:
			v = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))
		}
		pixels[i] = v*bscale + bzero
	}

	return &FitsImage{
		Pixels:   pixels,
		Width:    width,
		Height:   height,
		Bitpix:   bitpix,
		Metadata: metadata,
	}, nil
}

// Gray narrows the image to 8-bit samples with a linear min/max stretch.
// NaN samples map to 0.
func (f *FitsImage) Gray() *image.Gray {
	return stretchToGray(f.Pixels, f.Width, f.Height)
}

// GrayDebayered treats the data as a raw RGGB mosaic, reduces it to
// luminance and then narrows it like Gray.
func (f *FitsImage) GrayDebayered() *image.Gray {
	return stretchToGray(DebayerRGGB(f.Pixels, f.Width, f.Height), f.Width, f.Height)
}

func stretchToGray(values []float64, width, height int) *image.Gray {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) {
		return img
	}
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		img.Pix[i] = clampUint8((v - lo) / span * 255)
	}
	return img
}

// WriteFits encodes img as a BITPIX 8 primary HDU.
func WriteFits(w io.Writer, img *image.Gray) error {
	if img == nil || img.Bounds().Empty() {
		return errors.New("write FITS: empty image")
	}
	b := img.Bounds()
	cards := []string{
		fitsCard("SIMPLE", "T"),
		fitsCard("BITPIX", "8"),
		fitsCard("NAXIS", "2"),
		fitsCard("NAXIS1", strconv.Itoa(b.Dx())),
		fitsCard("NAXIS2", strconv.Itoa(b.Dy())),
		fitsCard("CREATOR", "'starstack'"),
		fmt.Sprintf("%-80s", "END"),
	}

	var header bytes.Buffer
	for _, c := range cards {
		header.WriteString(c)
	}
	header.Write(bytes.Repeat([]byte{' '}, padToBlock(header.Len())))
	if _, err := w.Write(header.Bytes()); err != nil {
		return fmt.Errorf("write FITS header: %w", err)
	}

	data := make([]byte, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		data = append(data, img.Pix[y*img.Stride:y*img.Stride+b.Dx()]...)
	}
	data = append(data, make([]byte, padToBlock(len(data)))...)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write FITS data: %w", err)
	}
	return nil
}

func fitsCard(key, value string) string {
	return fmt.Sprintf("%-8s= %20s", key, value) + strings.Repeat(" ", fitsRecordLen-30)
}

func padToBlock(n int) int {
	if rem := n % fitsBlockLen; rem != 0 {
		return fitsBlockLen - rem
	}
	return 0
}

func parseFitsValue(rawValue string) string {
	switch rawValue {
	case "":
		return ""
	case "T":
		return "True"
	case "F":
		return "False"
	}
	if strings.HasPrefix(rawValue, "'") {
		endQuote := strings.LastIndex(rawValue, "'")
		if endQuote > 0 {
			return strings.TrimRight(rawValue[1:endQuote], " ")
		}
		return strings.TrimLeft(strings.TrimRight(rawValue, " "), "'")
	}
	return rawValue
}
