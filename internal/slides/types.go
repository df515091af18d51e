// Package slides runs the slide-reconstruction pipeline: paged rasterization,
// batched AI visual analysis with text removal, and layout selection for the
// deck writer.
package slides

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bangdoll/tubenotes/internal/llm"
)

// Layout selects one of the deck writer's slide arrangements.
type Layout string

const (
	LayoutSplitLeftImage Layout = "split_left_image"
	LayoutFullWidthText  Layout = "full_width_text"
	LayoutComparison     Layout = "comparison"
)

// Placeholder titles for units whose analysis did not produce a real result.
// The product UI is Traditional Chinese, so the user-visible sentinels are too.
const (
	PlaceholderFailedTitle   = "分析暫時無法使用"
	PlaceholderTimedOutTitle = "分析超時"
)

// Default colors applied when the model suggests none (or suggests garbage).
const (
	DefaultBackgroundColor = "#ffffff"
	DefaultTextColor       = "#000000"
)

// BBox is a normalized crop region on a 0-1000 scale.
type BBox struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// PageAnalysis is the fully-defaulted result of parsing one page's analysis
// response. Every field always holds a usable value.
type PageAnalysis struct {
	Title           string
	Content         []string
	SpeakerNotes    string
	Layout          Layout
	BackgroundColor string
	TextColor       string
	ImageBBox       *BBox
	Failed          bool
}

// PageResult pairs a unit's analysis with its (possibly text-removed) image.
type PageResult struct {
	Index    int // position in the job's unit sequence
	PageNum  int // 1-based page in the source document
	Analysis PageAnalysis
	Image    []byte
}

// FailedAnalysis builds the sentinel result substituted when a unit's
// analysis ultimately fails. The cause lands in the slide body so the user
// can see what to fix.
func FailedAnalysis(cause error) PageAnalysis {
	return PageAnalysis{
		Title:           PlaceholderFailedTitle,
		Content:         []string{fmt.Sprintf("錯誤: %v", cause), "請稍後再試或更換 API Key"},
		SpeakerNotes:    "系統無法讀取此頁面。",
		Layout:          LayoutSplitLeftImage,
		BackgroundColor: DefaultBackgroundColor,
		TextColor:       DefaultTextColor,
		Failed:          true,
	}
}

// TimedOutAnalysis builds the sentinel result substituted when a unit's
// analysis exceeds its time budget. Colors stay empty; the deck writer
// renders no-color slides on its dark fallback theme.
func TimedOutAnalysis() PageAnalysis {
	return PageAnalysis{
		Title:   PlaceholderTimedOutTitle,
		Content: []string{"AI 回應過慢，請手動編輯"},
		Layout:  LayoutSplitLeftImage,
		Failed:  true,
	}
}

// ParseAnalysis decodes the model's JSON into a PageAnalysis, tolerating the
// shapes the model actually produces: markdown fences, an array wrapping the
// object, missing fields, and wrongly-typed fields. Only unparseable JSON is
// an error.
func ParseAnalysis(raw string) (PageAnalysis, error) {
	cleaned := strings.TrimSpace(llm.CleanJSONBlock(raw))
	if cleaned == "" {
		return PageAnalysis{}, fmt.Errorf("empty analysis response")
	}

	// The model occasionally wraps the object in a single-element array; an
	// empty array degrades to an empty object.
	if strings.HasPrefix(cleaned, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
			return PageAnalysis{}, fmt.Errorf("parsing analysis array: %w", err)
		}
		if len(items) == 0 {
			cleaned = "{}"
		} else {
			cleaned = string(items[0])
		}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return PageAnalysis{}, fmt.Errorf("parsing analysis object: %w", err)
	}
	return analysisFromMap(fields), nil
}

func analysisFromMap(fields map[string]any) PageAnalysis {
	a := PageAnalysis{
		Title:           stringField(fields, "title", ""),
		Content:         stringListField(fields, "content"),
		SpeakerNotes:    stringField(fields, "speaker_notes", ""),
		Layout:          parseLayout(stringField(fields, "layout", "")),
		BackgroundColor: parseHexColor(stringField(fields, "background_color_hex", ""), DefaultBackgroundColor),
		TextColor:       parseHexColor(stringField(fields, "text_color_hex", ""), DefaultTextColor),
	}
	a.ImageBBox = parseBBox(fields["main_image_bbox"])
	if a.ImageBBox == nil {
		a.ImageBBox = firstVisualElementBBox(fields["visual_elements"])
	}
	return a
}

func stringField(fields map[string]any, key, def string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return def
}

func stringListField(fields map[string]any, key string) []string {
	items, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseLayout(raw string) Layout {
	switch Layout(strings.TrimSpace(strings.ToLower(raw))) {
	case LayoutFullWidthText:
		return LayoutFullWidthText
	case LayoutComparison:
		return LayoutComparison
	default:
		return LayoutSplitLeftImage
	}
}

// parseHexColor normalizes "RRGGBB"/"#RRGGBB" to lowercase "#rrggbb",
// falling back on anything else.
func parseHexColor(raw, def string) string {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
	if len(s) != 6 {
		return def
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return def
		}
	}
	return "#" + strings.ToLower(s)
}

// parseBBox accepts a 4-number [ymin, xmin, ymax, xmax] array on the 0-1000
// scale, clamping values into range. Anything else yields nil.
func parseBBox(raw any) *BBox {
	items, ok := raw.([]any)
	if !ok || len(items) != 4 {
		return nil
	}
	nums := make([]float64, 4)
	for i, item := range items {
		n, ok := item.(float64)
		if !ok {
			return nil
		}
		nums[i] = clamp(n, 0, 1000)
	}
	return &BBox{Top: nums[0], Left: nums[1], Bottom: nums[2], Right: nums[3]}
}

func firstVisualElementBBox(raw any) *BBox {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	for _, item := range items {
		element, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if box := parseBBox(element["bbox"]); box != nil {
			return box
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
