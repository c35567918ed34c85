// Package status serves run progress, health and metrics while the processor runs.
package status

import (
	"sync"
	"time"

	"github.com/mohammed-shakir/skidata-processor/internal/processor"
)

type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

type PipelineStatus struct {
	Category string        `json:"category"`
	State    State         `json:"state"`
	Read     int           `json:"read"`
	Written  int           `json:"written"`
	In       int           `json:"in,omitempty"`
	Out      int           `json:"out,omitempty"`
	Dropped  int           `json:"dropped,omitempty"`
	Duration time.Duration `json:"durationNs,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type Snapshot struct {
	RunID     string           `json:"runId"`
	StartedAt time.Time        `json:"startedAt"`
	Pipelines []PipelineStatus `json:"pipelines"`
}

// Tracker records pipeline progress. It implements processor.Observer.
type Tracker struct {
	mu      sync.Mutex
	runID   string
	started time.Time
	order   []string
	byCat   map[string]*PipelineStatus
}

func NewTracker(runID string, categories ...string) *Tracker {
	t := &Tracker{runID: runID, started: time.Now(), byCat: make(map[string]*PipelineStatus)}
	for _, c := range categories {
		t.entry(c)
	}
	return t
}

var _ processor.Observer = (*Tracker)(nil)

func (t *Tracker) entry(category string) *PipelineStatus {
	if s, ok := t.byCat[category]; ok {
		return s
	}
	s := &PipelineStatus{Category: category, State: StatePending}
	t.byCat[category] = s
	t.order = append(t.order, category)
	return s
}

func (t *Tracker) PipelineStarted(category string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(category).State = StateRunning
}

func (t *Tracker) FeatureRead(category string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(category).Read++
}

func (t *Tracker) FeatureWritten(category string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(category).Written++
}

func (t *Tracker) PipelineFinished(r processor.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(r.Category)
	s.State = StateDone
	s.In, s.Out, s.Dropped, s.Duration = r.In, r.Out, r.Dropped, r.Duration
	if r.Err != nil {
		s.State = StateFailed
		s.Error = r.Err.Error()
	}
}

// Readiness is true once every known pipeline has finished.
func (t *Tracker) Readiness() (bool, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var pending []string
	for _, c := range t.order {
		if st := t.byCat[c].State; st == StatePending || st == StateRunning {
			pending = append(pending, c)
		}
	}
	return len(pending) == 0, pending
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := Snapshot{RunID: t.runID, StartedAt: t.started, Pipelines: make([]PipelineStatus, 0, len(t.order))}
	for _, c := range t.order {
		out.Pipelines = append(out.Pipelines, *t.byCat[c])
	}
	return out
}
