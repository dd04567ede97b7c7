package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	ss "starstack/pkg/starstack"
)

// InputError reports a frame that could not be read or decoded.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string { return fmt.Sprintf("load %s: %v", e.Path, e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

func isFits(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return true
	}
	return false
}

// loadFrame decodes one input into an 8-bit frame. FITS data is stretched
// to the full 8-bit range; RGGB mosaics are reduced to luminance when
// debayer is set or the header declares the pattern.
func loadFrame(path string, debayer bool) (*image.Gray, error) {
	if !isFits(path) {
		img, err := loadImageFile(path)
		if err != nil {
			return nil, &InputError{Path: path, Err: err}
		}
		return img, nil
	}

	fits, err := ss.ReadFits(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	if debayer || fits.Metadata.BayerPattern() == "RGGB" {
		return fits.GrayDebayered(), nil
	}
	return fits.Gray(), nil
}

// loadFrames decodes all inputs concurrently, keeping the argument order.
func loadFrames(ctx context.Context, paths []string, debayer bool, workers int) ([]*image.Gray, error) {
	frames := make([]*image.Gray, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := loadFrame(p, debayer)
			if err != nil {
				return err
			}
			frames[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// saveFrame writes img to path, choosing the encoder from the extension.
func saveFrame(path string, img *image.Gray) error {
	if isFits(path) {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := ss.WriteFits(f, img); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		return f.Close()
	}
	return writeImageFile(path, img)
}
