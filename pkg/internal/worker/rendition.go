package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"golang.org/x/image/draw"

	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/ocr"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
)

const (
	// WebSize 网页预览的最长边.
	WebSize = 1600
	// ThumbSize 缩略图的最长边.
	ThumbSize = 256

	jpegQuality = 85
)

func (w *Worker) storeRenditions(ctx context.Context, file *model.File, sourcePath string) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := ocr.Decode(f)
	if err != nil {
		return err
	}

	for _, r := range []struct {
		artifact blob.Artifact
		size     int
		scaler   draw.Scaler
	}{
		{blob.Web, WebSize, draw.CatmullRom},
		{blob.Thumb, ThumbSize, draw.ApproxBiLinear},
	} {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, Scale(src, r.size, r.scaler), &jpeg.Options{Quality: jpegQuality}); err != nil {
			return fmt.Errorf("encode %s: %w", r.artifact, err)
		}

		if err := ignoreExisting(w.files.StoreRendition(ctx, file, r.artifact, &buf)); err != nil {
			return err
		}
	}

	return nil
}

// Scale 等比缩放到最长边不超过 limit，不放大.
func Scale(src image.Image, limit int, scaler draw.Scaler) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	if w <= limit && h <= limit {
		return src
	}

	if w >= h {
		h = max(h*limit/w, 1)
		w = limit
	} else {
		w = max(w*limit/h, 1)
		h = limit
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	return dst
}
