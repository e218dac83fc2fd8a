package upload

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
)

// compressImage downsamples src so its longer edge is at most maxW/maxH
// (spec §4.1: "RGB, longest-edge ≤ 1920×1080, JPEG quality 85") and
// writes the result to a sibling file. Grounded in imagetool/tool.go's
// stdlib-only nearest-neighbor resize, generalized from its fixed
// 512px shorter-edge rule to this manager's longest-edge cap.
func compressImage(srcPath string, maxW, maxH, quality int) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", srcPath, err)
	}

	sw, sh := img.Bounds().Dx(), img.Bounds().Dy()
	tw, th := sw, sh
	if sw > maxW || sh > maxH {
		scaleW := float64(maxW) / float64(sw)
		scaleH := float64(maxH) / float64(sh)
		scale := scaleW
		if scaleH < scale {
			scale = scaleH
		}
		tw = int(float64(sw) * scale)
		th = int(float64(sh) * scale)
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	nearestNeighborScale(dst, img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode compressed jpeg: %w", err)
	}

	dstPath := compressedSiblingPath(srcPath)
	if err := os.WriteFile(dstPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write compressed file: %w", err)
	}
	return dstPath, nil
}

func compressedSiblingPath(srcPath string) string {
	dir := filepath.Dir(srcPath)
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	return filepath.Join(dir, stem+".compressed.jpg")
}

// nearestNeighborScale scales src into dst using nearest-neighbor
// sampling; dst must already be allocated with the target bounds.
func nearestNeighborScale(dst *image.RGBA, src image.Image) {
	sw := src.Bounds().Dx()
	sh := src.Bounds().Dy()
	dw := dst.Bounds().Dx()
	dh := dst.Bounds().Dy()

	for y := 0; y < dh; y++ {
		sy := int(float64(y) * float64(sh) / float64(dh))
		if sy >= sh {
			sy = sh - 1
		}
		for x := 0; x < dw; x++ {
			sx := int(float64(x) * float64(sw) / float64(dw))
			if sx >= sw {
				sx = sw - 1
			}
			c := src.At(src.Bounds().Min.X+sx, src.Bounds().Min.Y+sy)
			dst.Set(x+dst.Bounds().Min.X, y+dst.Bounds().Min.Y, c)
		}
	}
}
