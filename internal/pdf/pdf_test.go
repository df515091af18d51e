package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a structurally valid PDF with the given number of blank
// pages, including a correct xref table.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")
	var kids []string
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+i))
	}
	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n", 3+i))
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefPos)
	return buf.Bytes()
}

func writeTestPDF(t *testing.T, pages int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pdf")
	require.NoError(t, os.WriteFile(path, minimalPDF(pages), 0o644))
	return path
}

func TestParsePdfinfoPages(t *testing.T) {
	output := `Title:          demo
Creator:        test
Pages:          7
Encrypted:      no
Page size:      612 x 792 pts (letter)`

	count, err := parsePdfinfoPages(output)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestParsePdfinfoPagesMissing(t *testing.T) {
	_, err := parsePdfinfoPages("Title: demo\nEncrypted: no\n")
	assert.Error(t, err)
}

func TestCountPages(t *testing.T) {
	if _, err := exec.LookPath("pdfinfo"); err != nil {
		t.Skip("pdfinfo not available, skipping test")
	}

	r := NewRasterizer()
	count, err := r.CountPages(context.Background(), writeTestPDF(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRenderPageInvalidNumber(t *testing.T) {
	r := NewRasterizer()
	_, err := r.RenderPage(context.Background(), "whatever.pdf", 0, t.TempDir())
	assert.Error(t, err)
}

func TestRenderPage(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not available, skipping test")
	}

	r := NewRasterizer()
	pdfPath := writeTestPDF(t, 2)
	outDir := t.TempDir()

	imgPath, err := r.RenderPage(context.Background(), pdfPath, 2, outDir)
	require.NoError(t, err)
	assert.Equal(t, "page_0002.jpg", filepath.Base(imgPath))

	f, err := os.Open(imgPath)
	require.NoError(t, err)
	defer f.Close()
	_, err = jpeg.Decode(f)
	assert.NoError(t, err, "rendered page should be a valid JPEG")
}

func TestRenderPagesPreservesOrder(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not available, skipping test")
	}

	r := NewRasterizer()
	pdfPath := writeTestPDF(t, 5)

	paths, err := r.RenderPages(context.Background(), pdfPath, []int{4, 2}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "page_0004.jpg", filepath.Base(paths[0]))
	assert.Equal(t, "page_0002.jpg", filepath.Base(paths[1]))
}

func TestRenderPreviews(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not available, skipping test")
	}

	r := NewRasterizer()
	pdfPath := writeTestPDF(t, 2)
	outDir := t.TempDir()

	previews, err := r.RenderPreviews(context.Background(), pdfPath, []int{1, 2}, outDir)
	require.NoError(t, err)
	require.Len(t, previews, 2)

	for i, p := range previews {
		assert.True(t, strings.HasPrefix(filepath.Base(p), "preview_"), "name = %s", filepath.Base(p))
		assert.True(t, strings.HasSuffix(filepath.Base(p), fmt.Sprintf("_%d.jpg", i)), "name = %s", filepath.Base(p))

		f, err := os.Open(p)
		require.NoError(t, err)
		img, _, err := image.Decode(f)
		_ = f.Close()
		require.NoError(t, err)
		assert.LessOrEqual(t, img.Bounds().Dx(), PreviewMaxDim)
		assert.LessOrEqual(t, img.Bounds().Dy(), PreviewMaxDim)
	}
}

func TestBlankJPEG(t *testing.T) {
	data, err := BlankJPEG(800, 600)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())

	r, g, b, _ := img.At(400, 300).RGBA()
	assert.Greater(t, r>>8, uint32(240), "placeholder should be white")
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestScaleToFit(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 1000, 600))
	scaled := scaleToFit(big, 400)
	assert.Equal(t, 400, scaled.Bounds().Dx())
	assert.Equal(t, 240, scaled.Bounds().Dy())

	tall := image.NewRGBA(image.Rect(0, 0, 300, 900))
	scaled = scaleToFit(tall, 400)
	assert.Equal(t, 400, scaled.Bounds().Dy())
	assert.Equal(t, 133, scaled.Bounds().Dx())

	small := image.NewRGBA(image.Rect(0, 0, 200, 100))
	assert.Same(t, image.Image(small), scaleToFit(small, 400))
}
