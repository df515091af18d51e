package pdf

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const (
	// PreviewMaxDim bounds preview thumbnails on their longer edge.
	PreviewMaxDim = 400

	// PreviewQuality is the JPEG quality for previews.
	PreviewQuality = 80
)

// RenderPreviews rasterizes the given pages and scales them down to
// thumbnails for the upload UI. File names carry a random prefix so stale
// browser caches never show a previous document's pages.
func (r *Rasterizer) RenderPreviews(ctx context.Context, pdfPath string, pages []int, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, &Error{Message: "failed to create preview directory", Cause: err}
	}

	renderDir, err := os.MkdirTemp("", "tubenotes-preview-*")
	if err != nil {
		return nil, &Error{Message: "failed to create render scratch directory", Cause: err}
	}
	defer func() { _ = os.RemoveAll(renderDir) }()

	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	previews := make([]string, 0, len(pages))
	for i, page := range pages {
		full, err := r.RenderPage(ctx, pdfPath, page, renderDir)
		if err != nil {
			return previews, err
		}
		out := filepath.Join(outDir, fmt.Sprintf("preview_%s_%d.jpg", prefix, i))
		if err := writeThumbnail(full, out); err != nil {
			return previews, err
		}
		previews = append(previews, out)
	}
	return previews, nil
}

func writeThumbnail(srcPath, dstPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return &Error{Message: "failed to open rendered page", Cause: err}
	}
	defer func() { _ = f.Close() }()

	src, _, err := image.Decode(f)
	if err != nil {
		return &Error{Message: "failed to decode rendered page", Cause: err}
	}

	thumb := scaleToFit(src, PreviewMaxDim)

	out, err := os.Create(dstPath)
	if err != nil {
		return &Error{Message: "failed to create preview file", Cause: err}
	}
	defer func() { _ = out.Close() }()

	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: PreviewQuality}); err != nil {
		return &Error{Message: "failed to encode preview", Cause: err}
	}
	return nil
}

// scaleToFit shrinks img so both dimensions fit within maxDim, preserving
// aspect ratio. Images already small enough pass through unscaled.
func scaleToFit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
