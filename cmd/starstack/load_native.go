//go:build !purego && !js

package main

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

func loadImageFile(path string) (*image.Gray, error) {
	src := gocv.IMRead(path, gocv.IMReadGrayScale)
	if src.Empty() {
		return nil, fmt.Errorf("could not load image: %s", path)
	}
	defer src.Close()

	w, h := src.Cols(), src.Rows()
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, src.ToBytes())
	return img, nil
}

func writeImageFile(path string, img *image.Gray) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp":
	default:
		return fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}

	b := img.Bounds()
	m, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, img.Pix)
	if err != nil {
		return fmt.Errorf("wrap output image: %w", err)
	}
	defer m.Close()

	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("could not write image: %s", path)
	}
	return nil
}
