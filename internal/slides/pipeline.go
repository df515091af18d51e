package slides

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/progress"
)

// PageCounter reports how many pages a PDF has.
type PageCounter interface {
	CountPages(ctx context.Context, pdfPath string) (int, error)
}

// DeckBuilder writes the reconstructed presentation. One output slide per
// unit, in unit order.
type DeckBuilder interface {
	Build(units []PageResult, outputPath string) error
}

// Previewer renders small page thumbnails a front end can show while the
// slow analysis runs. Optional and best-effort.
type Previewer interface {
	RenderPreviews(ctx context.Context, pdfPath string, pages []int, outDir string) ([]string, error)
}

// Job is one slide-reconstruction request.
type Job struct {
	PDFPath  string
	Filename string // original upload name; drives the artifact name
	Pages    []int  // 1-based page selection, empty means every page
	Reporter progress.Reporter
}

// Result is a completed slide job.
type Result struct {
	OutputPath string
	TotalPages int
	Units      []PageResult
}

// Pipeline wires the slide flow's collaborators.
type Pipeline struct {
	Counter  PageCounter
	Sched    *Scheduler
	Deck     DeckBuilder
	Previews Previewer // nil disables preview thumbnails

	OutputDir string
	Log       *logrus.Entry
}

// NewPipeline builds a slide pipeline writing artifacts under outputDir.
func NewPipeline(counter PageCounter, sched *Scheduler, deck DeckBuilder, outputDir string, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{
		Counter:   counter,
		Sched:     sched,
		Deck:      deck,
		OutputDir: outputDir,
		Log:       log,
	}
}

// Run executes the pipeline for one uploaded document.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Result, error) {
	rep := job.Reporter
	if rep == nil {
		rep = progress.Nop{}
	}

	rep.Progress(0, 0, "正在讀取 PDF 檔案結構...")
	total, err := p.Counter.CountPages(ctx, job.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("reading pdf structure: %w", err)
	}
	p.Log.WithFields(logrus.Fields{"file": job.Filename, "pages": total}).Info("pdf loaded")

	pages := normalizePages(job.Pages, total)
	if len(pages) == 0 {
		return nil, fmt.Errorf("no valid pages selected (document has %d pages)", total)
	}

	// Thumbnails go out before analysis starts so the client has something
	// to show during the slow part. Failures only cost the previews.
	if p.Previews != nil {
		previewDir := filepath.Join(p.OutputDir, "previews")
		if paths, perr := p.Previews.RenderPreviews(ctx, job.PDFPath, pages, previewDir); perr != nil {
			p.Log.WithError(perr).Warn("preview rendering failed")
		} else {
			for i, path := range paths {
				rep.Logf("預覽圖 %d: %s", pages[i], path)
			}
		}
	}

	workDir, err := os.MkdirTemp("", "tubenotes-slides-*")
	if err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	units, err := p.Sched.Process(ctx, job.PDFPath, pages, workDir, rep)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	outPath := filepath.Join(p.OutputDir, artifactName(job.Filename))
	if err := p.Deck.Build(units, outPath); err != nil {
		return nil, fmt.Errorf("writing presentation: %w", err)
	}
	rep.Logf("簡報已儲存至: %s", outPath)

	return &Result{
		OutputPath: outPath,
		TotalPages: total,
		Units:      units,
	}, nil
}

// normalizePages clamps a 1-based selection to the document, sorts it, and
// drops duplicates. An empty selection selects every page.
func normalizePages(selected []int, total int) []int {
	if total < 1 {
		return nil
	}
	if len(selected) == 0 {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}
	seen := make(map[int]bool, len(selected))
	var pages []int
	for _, page := range selected {
		if page >= 1 && page <= total && !seen[page] {
			seen[page] = true
			pages = append(pages, page)
		}
	}
	sort.Ints(pages)
	return pages
}

// artifactName derives the output filename from the uploaded document's name.
func artifactName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." {
		base = "slides"
	}
	return base + "_converted.pptx"
}
