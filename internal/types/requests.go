// Package types provides the request and event payload definitions shared by
// the server and CLI layers.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"github.com/go-playground/validator/v10"
)

// NoteRequest asks for a video-to-note job.
type NoteRequest struct {
	URL string `json:"url" validate:"required,url"`
	// APIKey lets the caller bring their own Gemini key; empty uses the
	// server's configured key.
	APIKey string `json:"api_key,omitempty"`
}

// SlidesRequest asks for a slide-reconstruction job. The PDF itself travels
// as a multipart part next to this metadata.
type SlidesRequest struct {
	Filename string `json:"filename" validate:"required"`
	// Pages is a 1-based selection; empty selects every page.
	Pages  []int  `json:"pages,omitempty" validate:"omitempty,dive,gte=1"`
	APIKey string `json:"api_key,omitempty"`
}

// Validate validates the NoteRequest using the validator.
func (r *NoteRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the SlidesRequest using the validator.
func (r *SlidesRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// JobAccepted is the payload of the first event a started job emits.
type JobAccepted struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

// NoteResult is the terminal payload of a successful note job.
type NoteResult struct {
	VideoID  string `json:"video_id"`
	Title    string `json:"title"`
	Tier     string `json:"tier"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Markdown string `json:"markdown"`
}

// SlidesResult is the terminal payload of a successful slide job.
type SlidesResult struct {
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	TotalPages int    `json:"total_pages"`
	SlideCount int    `json:"slide_count"`
}
