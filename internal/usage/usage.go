// Package usage keeps a monthly ledger of external AI spend, persisted as a
// JSON file keyed by YYYY-MM. Recording is best-effort: a job never fails
// because the ledger could not be written.
package usage

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Transcription price in USD per audio minute.
const audioPricePerMinute = 0.006

// chatPrices maps a model-name substring to per-1K-token prompt and
// completion prices. Models without an entry record at zero cost so the
// breakdown still shows the traffic.
var chatPrices = []struct {
	match      string
	prompt     float64
	completion float64
}{
	{"gpt-4o", 0.0025, 0.0100},
}

// DefaultMonthlyLimit is the spend ceiling in USD checked before new jobs.
const DefaultMonthlyLimit = 20.0

const DefaultLedgerFile = "usage_data.json"

// Entry kinds. Transcription keeps its historical ledger name.
const (
	KindChat          = "chat"
	KindTranscription = "whisper"
)

// Entry is one recorded call. Details carries kind-specific fields: model
// and token counts for chat, duration for transcription. Timestamps stay
// strings so ledgers written by earlier releases load unchanged.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"type"`
	Cost      float64        `json:"cost"`
	Details   map[string]any `json:"details,omitempty"`
}

// Month is one month's accumulated spend.
type Month struct {
	TotalCost float64 `json:"total_cost"`
	Breakdown []Entry `json:"breakdown"`
}

// Tracker is the ledger. All methods are safe for concurrent use; every
// record is persisted immediately under the lock.
type Tracker struct {
	Path  string
	Limit float64
	Log   *logrus.Entry

	mu   sync.Mutex
	data map[string]*Month

	now func() time.Time
}

func NewTracker(path string, log *logrus.Entry) *Tracker {
	if path == "" {
		path = DefaultLedgerFile
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Tracker{
		Path:  path,
		Limit: DefaultMonthlyLimit,
		Log:   log,
		now:   time.Now,
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	t.data = make(map[string]*Month)
	raw, err := os.ReadFile(t.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.Log.WithError(err).Warn("could not read usage ledger, starting empty")
		}
		return
	}
	if err := json.Unmarshal(raw, &t.data); err != nil {
		t.Log.WithError(err).Warn("corrupt usage ledger, starting empty")
		t.data = make(map[string]*Month)
	}
}

func (t *Tracker) persistLocked() {
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		t.Log.WithError(err).Warn("could not encode usage ledger")
		return
	}
	if err := os.WriteFile(t.Path, raw, 0o644); err != nil {
		t.Log.WithError(err).Warn("could not write usage ledger")
	}
}

func (t *Tracker) monthKey() string {
	return t.now().Format("2006-01")
}

func (t *Tracker) record(kind string, cost float64, details map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := t.monthKey()
	m := t.data[key]
	if m == nil {
		m = &Month{}
		t.data[key] = m
	}
	m.TotalCost += cost
	m.Breakdown = append(m.Breakdown, Entry{
		Timestamp: t.now().Format(time.RFC3339),
		Kind:      kind,
		Cost:      cost,
		Details:   details,
	})
	t.persistLocked()
}

// AddChat records a text-generation call. The signature matches llm.UsageFunc
// so the tracker can hang directly off the client.
func (t *Tracker) AddChat(model string, promptTokens, completionTokens int32) {
	t.record(KindChat, chatCost(model, promptTokens, completionTokens), map[string]any{
		"model":             model,
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
	})
}

// AddTranscription records transcribed audio by duration.
func (t *Tracker) AddTranscription(seconds float64) {
	t.record(KindTranscription, seconds/60*audioPricePerMinute, map[string]any{
		"duration_seconds": seconds,
	})
}

func chatCost(model string, promptTokens, completionTokens int32) float64 {
	for _, p := range chatPrices {
		if strings.Contains(model, p.match) {
			return float64(promptTokens)/1000*p.prompt + float64(completionTokens)/1000*p.completion
		}
	}
	return 0
}

// MonthTotal returns the recorded spend for a YYYY-MM key, or the current
// month when the key is empty.
func (t *Tracker) MonthTotal(month string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if month == "" {
		month = t.monthKey()
	}
	if m := t.data[month]; m != nil {
		return m.TotalCost
	}
	return 0
}

// LimitExceeded reports whether the current month's spend is over the cap.
func (t *Tracker) LimitExceeded() bool {
	return t.MonthTotal("") > t.Limit
}

// Snapshot returns a copy of the ledger keyed by month.
func (t *Tracker) Snapshot() map[string]Month {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Month, len(t.data))
	for k, m := range t.data {
		out[k] = Month{
			TotalCost: m.TotalCost,
			Breakdown: append([]Entry(nil), m.Breakdown...),
		}
	}
	return out
}
