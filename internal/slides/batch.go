package slides

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bangdoll/tubenotes/internal/llm"
	"github.com/bangdoll/tubenotes/internal/pdf"
	"github.com/bangdoll/tubenotes/internal/progress"
)

// Batch policy. The first page runs alone so the user sees a result fast;
// the rest go three at a time with a cooldown between batches.
const (
	DefaultBatchSize       = 3
	DefaultUnitTimeout     = 60 * time.Second
	DefaultRasterTimeout   = 45 * time.Second
	DefaultInterBatchDelay = 1 * time.Second
)

// Blank placeholder dimensions for pages whose rasterization failed.
const (
	blankPageWidth  = 800
	blankPageHeight = 600
)

// Rasterizer renders 1-based pages of a PDF to JPEG files.
type Rasterizer interface {
	RenderPages(ctx context.Context, pdfPath string, pages []int, outDir string) ([]string, error)
}

// UnitAnalyzer is the per-page AI surface the scheduler drives.
type UnitAnalyzer interface {
	AnalyzePage(ctx context.Context, image []byte) (PageAnalysis, error)
	CleanImage(ctx context.Context, image []byte) ([]byte, error)
}

// Scheduler partitions a page selection into batches and runs each batch's
// units concurrently. Per-unit and per-batch failures degrade to
// placeholders; only quota exhaustion and whole-job cancellation abort.
type Scheduler struct {
	Raster   Rasterizer
	Analyzer UnitAnalyzer

	BatchSize       int
	UnitTimeout     time.Duration
	RasterTimeout   time.Duration
	InterBatchDelay time.Duration

	Log *logrus.Entry
}

// NewScheduler builds a scheduler with the default batch policy.
func NewScheduler(raster Rasterizer, analyzer UnitAnalyzer, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		Raster:          raster,
		Analyzer:        analyzer,
		BatchSize:       DefaultBatchSize,
		UnitTimeout:     DefaultUnitTimeout,
		RasterTimeout:   DefaultRasterTimeout,
		InterBatchDelay: DefaultInterBatchDelay,
		Log:             log,
	}
}

// Process analyzes the given 1-based pages of pdfPath in order. The result
// slice always has exactly one entry per requested page, placed by index.
func (s *Scheduler) Process(ctx context.Context, pdfPath string, pages []int, workDir string, rep progress.Reporter) ([]PageResult, error) {
	if rep == nil {
		rep = progress.Nop{}
	}
	if len(pages) == 0 {
		return nil, nil
	}

	results := make([]PageResult, len(pages))
	batches := partition(len(pages), s.BatchSize)
	total := len(pages)
	processed := 0

	for bi, batch := range batches {
		firstPage := pages[batch[0]]
		lastPage := pages[batch[len(batch)-1]]
		rep.Progress(processed, total, fmt.Sprintf("正在處理第 %d-%d 頁...", firstPage, lastPage))

		images := s.rasterizeBatch(ctx, pdfPath, pages, batch, workDir)

		g, gctx := errgroup.WithContext(ctx)
		for j, idx := range batch {
			g.Go(func() error {
				res, err := s.processUnit(gctx, images[j])
				if err != nil {
					return err
				}
				res.Index = idx
				res.PageNum = pages[idx]
				results[idx] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		processed += len(batch)
		rep.Progress(processed, total, "")
		s.Log.WithFields(logrus.Fields{
			"batch":     bi + 1,
			"batches":   len(batches),
			"processed": processed,
			"total":     total,
		}).Info("batch complete")

		if processed < total {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.InterBatchDelay):
			}
		}
	}
	return results, nil
}

// partition splits unit indices 0..n-1 into batches: the first unit alone,
// then groups of size.
func partition(n, size int) [][]int {
	if n <= 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	batches := [][]int{{0}}
	for start := 1; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		batch := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, i)
		}
		batches = append(batches, batch)
	}
	return batches
}

// rasterizeBatch renders one batch's pages under the raster timeout. Pages
// that fail to render come back as blank placeholders so the unit count
// stays intact.
func (s *Scheduler) rasterizeBatch(ctx context.Context, pdfPath string, pages []int, batch []int, workDir string) [][]byte {
	rctx, cancel := context.WithTimeout(ctx, s.RasterTimeout)
	defer cancel()

	pageNums := make([]int, len(batch))
	for j, idx := range batch {
		pageNums[j] = pages[idx]
	}

	paths, err := s.Raster.RenderPages(rctx, pdfPath, pageNums, workDir)
	if err != nil {
		s.Log.WithError(err).WithField("pages", pageNums).Error("batch rasterization failed, padding with blank pages")
	}

	images := make([][]byte, len(batch))
	for j := range batch {
		if j < len(paths) {
			if data, rerr := os.ReadFile(paths[j]); rerr == nil {
				images[j] = data
				continue
			}
		}
		images[j] = blankPage()
	}
	return images
}

func blankPage() []byte {
	data, err := pdf.BlankJPEG(blankPageWidth, blankPageHeight)
	if err != nil {
		return nil
	}
	return data
}

// processUnit runs a unit's analysis and text-removal calls concurrently
// under the unit timeout. A unit timeout degrades to a timed-out
// placeholder with the original image; quota exhaustion and job
// cancellation abort.
func (s *Scheduler) processUnit(ctx context.Context, image []byte) (PageResult, error) {
	uctx, cancel := context.WithTimeout(ctx, s.UnitTimeout)
	defer cancel()

	var analysis PageAnalysis
	cleaned := image

	g, gctx := errgroup.WithContext(uctx)
	g.Go(func() error {
		a, err := s.Analyzer.AnalyzePage(gctx, image)
		if err != nil {
			return err
		}
		analysis = a
		return nil
	})
	g.Go(func() error {
		img, err := s.Analyzer.CleanImage(gctx, image)
		if err != nil {
			return err
		}
		if len(img) > 0 {
			cleaned = img
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if llm.IsQuotaExhausted(err) {
			return PageResult{}, err
		}
		if ctx.Err() != nil {
			return PageResult{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.Log.WithError(err).Error("unit analysis timed out, substituting placeholder")
			return PageResult{Analysis: TimedOutAnalysis(), Image: image}, nil
		}
		s.Log.WithError(err).Error("unit analysis failed, substituting placeholder")
		return PageResult{Analysis: FailedAnalysis(err), Image: image}, nil
	}
	return PageResult{Analysis: analysis, Image: cleaned}, nil
}
