// Package pdf wraps the poppler-utils binaries for page counting and paged
// rasterization of uploaded documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultDPI is the rasterization resolution for slide analysis.
const DefaultDPI = 100

// countTimeout bounds the pdfinfo call; a hung binary must not stall a job.
const countTimeout = 10 * time.Second

// Error represents a rasterizer failure.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pdf error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("pdf error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Rasterizer shells out to pdfinfo and pdftoppm.
type Rasterizer struct {
	InfoPath  string // defaults to "pdfinfo"
	ToPPMPath string // defaults to "pdftoppm"
	DPI       int    // defaults to DefaultDPI
}

func NewRasterizer() *Rasterizer {
	return &Rasterizer{
		InfoPath:  "pdfinfo",
		ToPPMPath: "pdftoppm",
		DPI:       DefaultDPI,
	}
}

// CheckDependencies verifies the poppler binaries are on PATH.
func (r *Rasterizer) CheckDependencies() error {
	if _, err := exec.LookPath(r.InfoPath); err != nil {
		return &Error{Message: "missing dependency: pdfinfo is not installed (install poppler-utils)", Cause: err}
	}
	if _, err := exec.LookPath(r.ToPPMPath); err != nil {
		return &Error{Message: "missing dependency: pdftoppm is not installed (install poppler-utils)", Cause: err}
	}
	return nil
}

// CountPages returns the document's page count. It tries pdfinfo first and
// falls back to ghostscript when pdfinfo is unavailable.
func (r *Rasterizer) CountPages(ctx context.Context, pdfPath string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, countTimeout)
	defer cancel()

	if count, err := r.countWithPdfinfo(ctx, pdfPath); err == nil {
		return count, nil
	}
	if count, err := countWithGhostscript(ctx, pdfPath); err == nil {
		return count, nil
	}
	return 0, &Error{Message: fmt.Sprintf("failed to count pages of %s: neither pdfinfo nor ghostscript produced a count", pdfPath)}
}

func (r *Rasterizer) countWithPdfinfo(ctx context.Context, pdfPath string) (int, error) {
	cmd := exec.CommandContext(ctx, r.InfoPath, pdfPath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w", err)
	}
	return parsePdfinfoPages(string(output))
}

func parsePdfinfoPages(output string) (int, error) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			if count, err := strconv.Atoi(parts[1]); err == nil {
				return count, nil
			}
		}
	}
	return 0, fmt.Errorf("no Pages line in pdfinfo output")
}

func countWithGhostscript(ctx context.Context, pdfPath string) (int, error) {
	script := fmt.Sprintf("(%s) (r) file runpdfbegin pdfpagecount = quit", pdfPath)
	cmd := exec.CommandContext(ctx, "gs", "-q", "-dNODISPLAY", "-c", script)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ghostscript failed: %w", err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, fmt.Errorf("unparseable ghostscript output %q", strings.TrimSpace(string(output)))
	}
	return count, nil
}

// RenderPage rasterizes a single page (1-based) to a JPEG and returns the
// image path.
func (r *Rasterizer) RenderPage(ctx context.Context, pdfPath string, page int, outDir string) (string, error) {
	if page < 1 {
		return "", &Error{Message: fmt.Sprintf("invalid page number %d", page)}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", &Error{Message: "failed to create render directory", Cause: err}
	}

	dpi := r.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	prefix := filepath.Join(outDir, fmt.Sprintf("page_%04d", page))
	args := []string{
		"-jpeg",
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		pdfPath,
		prefix,
	}

	cmd := exec.CommandContext(ctx, r.ToPPMPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &Error{
			Message: fmt.Sprintf("pdftoppm failed for page %d: %s", page, strings.TrimSpace(stderr.String())),
			Cause:   err,
		}
	}

	imgPath := prefix + ".jpg"
	if _, err := os.Stat(imgPath); err != nil {
		return "", &Error{Message: fmt.Sprintf("pdftoppm produced no image for page %d", page), Cause: err}
	}
	return imgPath, nil
}

// RenderPages rasterizes the given pages in order. The returned slice is
// index-aligned with the input; rendering stops at the first failure so the
// caller can substitute placeholders for the whole remainder.
func (r *Rasterizer) RenderPages(ctx context.Context, pdfPath string, pages []int, outDir string) ([]string, error) {
	paths := make([]string, 0, len(pages))
	for _, page := range pages {
		p, err := r.RenderPage(ctx, pdfPath, page, outDir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
