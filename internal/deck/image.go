package deck

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	"github.com/bangdoll/tubenotes/internal/slides"
)

const jpegQuality = 90

// pageImage is a decoded page picture ready for placement on a slide.
type pageImage struct {
	data   []byte
	width  int
	height int
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// prepareImage decodes raw page bytes, applies the analysis bbox crop and,
// for the split layout, the picture-column width cap, then re-encodes to
// JPEG for the media part. Cleaned pages may come back from the model as
// PNG, so both codecs are registered.
func prepareImage(data []byte, box *slides.BBox, fitSplit bool) (*pageImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding page image: %w", err)
	}
	if box != nil {
		img = cropRect(img, bboxPixels(*box, img.Bounds().Dx(), img.Bounds().Dy()))
	}
	if fitSplit {
		if r, ok := splitFitRect(img.Bounds().Dx(), img.Bounds().Dy()); ok {
			img = cropRect(img, r.Add(img.Bounds().Min))
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding page image: %w", err)
	}
	return &pageImage{
		data:   buf.Bytes(),
		width:  img.Bounds().Dx(),
		height: img.Bounds().Dy(),
	}, nil
}

func cropRect(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// bboxPixels maps a 0-1000 normalized bbox onto pixel coordinates. Clamping
// guarantees a rectangle of at least 1x1 inside the image, however far the
// model's coordinates drift.
func bboxPixels(b slides.BBox, w, h int) image.Rectangle {
	left := int(b.Left / 1000 * float64(w))
	top := int(b.Top / 1000 * float64(h))
	right := int(b.Right / 1000 * float64(w))
	bottom := int(b.Bottom / 1000 * float64(h))

	left = clampInt(left, 0, w-1)
	top = clampInt(top, 0, h-1)
	if right > w {
		right = w
	}
	if right < left+1 {
		right = left + 1
	}
	if bottom > h {
		bottom = h
	}
	if bottom < top+1 {
		bottom = top + 1
	}
	return image.Rect(left, top, right, bottom)
}

// splitFitRect center-crops pages wider than the 7:7.5 picture column so the
// full-height picture stays clear of the text column. Taller pages fit as-is.
func splitFitRect(w, h int) (image.Rectangle, bool) {
	if 15*w <= 14*h {
		return image.Rectangle{}, false
	}
	target := 14 * h / 15
	if target < 1 {
		target = 1
	}
	x0 := (w - target) / 2
	return image.Rect(x0, 0, x0+target, h), true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
