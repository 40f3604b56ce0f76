package migrate

import (
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/cfgsync/internal/client"
	"github.com/lherron/cfgsync/internal/resource"
)

// Outcome is the final state of one source item
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Failure describes one item that could not be synchronized
type Failure struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Kind   string `json:"kind" yaml:"kind"`
	Reason string `json:"reason" yaml:"reason"`
}

// Summary is the report of one run. The orchestrator returns a copy that is
// not modified afterwards.
type Summary struct {
	RunID         string    `json:"run_id" yaml:"run_id"`
	Policy        string    `json:"policy" yaml:"policy"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time `json:"finished_at" yaml:"finished_at"`
	Source        int       `json:"source" yaml:"source"`
	Created       int       `json:"created" yaml:"created"`
	Updated       int       `json:"updated" yaml:"updated"`
	Skipped       int       `json:"skipped" yaml:"skipped"`
	Failed        int       `json:"failed" yaml:"failed"`
	DetailFetches int       `json:"detail_fetches" yaml:"detail_fetches"`
	Failures      []Failure `json:"failures" yaml:"failures"`
	// Warnings are degraded conditions that did not fail any item
	Warnings []string `json:"warnings" yaml:"warnings"`
}

// Accounted returns how many items reached a final outcome
func (s *Summary) Accounted() int {
	return s.Created + s.Updated + s.Skipped + s.Failed
}

// ExitCode maps the run to the CLI exit convention: 0 when every item
// succeeded or was skipped, 5 for partial success.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 {
		return 5
	}
	return 0
}

// Headers implements render.Tabular
func (s *Summary) Headers() []string { return []string{"OUTCOME", "COUNT"} }

// Rows implements render.Tabular
func (s *Summary) Rows() [][]string {
	row := func(name string, n int) []string { return []string{name, strconv.Itoa(n)} }
	return [][]string{
		row("source", s.Source),
		row(string(OutcomeCreated), s.Created),
		row(string(OutcomeUpdated), s.Updated),
		row(string(OutcomeSkipped), s.Skipped),
		row(string(OutcomeFailed), s.Failed),
		row("detail fetches", s.DetailFetches),
	}
}

// tally accumulates outcomes from concurrent tasks
type tally struct {
	mu sync.Mutex
	s  Summary
}

func newTally(policy string) *tally {
	return &tally{s: Summary{
		RunID:     uuid.NewString(),
		Policy:    policy,
		StartedAt: time.Now(),
		Failures:  []Failure{},
		Warnings:  []string{},
	}}
}

func (t *tally) setSource(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Source = n
}

func (t *tally) fetched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.DetailFetches++
}

func (t *tally) record(outcome Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch outcome {
	case OutcomeCreated:
		t.s.Created++
	case OutcomeUpdated:
		t.s.Updated++
	case OutcomeSkipped:
		t.s.Skipped++
	}
}

func (t *tally) fail(item resource.Summary, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Failed++
	t.s.Failures = append(t.s.Failures, Failure{
		ID:     item.ID,
		Title:  item.Title,
		Kind:   failureKind(err),
		Reason: err.Error(),
	})
}

func (t *tally) warn(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Warnings = append(t.s.Warnings, msg)
}

// finish stamps the end time and returns an independent copy
func (t *tally) finish() *Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.FinishedAt = time.Now()
	out := t.s
	out.Failures = append([]Failure{}, t.s.Failures...)
	out.Warnings = append([]string{}, t.s.Warnings...)
	sort.SliceStable(out.Failures, func(i, j int) bool { return out.Failures[i].Title < out.Failures[j].Title })
	return &out
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "invalid"
	case errors.Is(err, ErrNotPersisted):
		return "verification"
	}
	if k := client.KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}
