package testhelpers

import (
	"sync"

	"github.com/dbehnke/reflector-nexus/pkg/report"
)

// Recorder is a report.Sink that keeps every report it receives
type Recorder struct {
	mu      sync.Mutex
	reports []report.Report
}

// Send records r
func (r *Recorder) Send(rep report.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

// Reports returns a copy of the recorded reports
func (r *Recorder) Reports() []report.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]report.Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// OfType returns the recorded reports of type t
func (r *Recorder) OfType(t report.Type) []report.Report {
	var out []report.Report
	for _, rep := range r.Reports() {
		if rep.Type == t {
			out = append(out, rep)
		}
	}
	return out
}

// Count returns how many reports of type t were recorded
func (r *Recorder) Count(t report.Type) int {
	return len(r.OfType(t))
}

// Reset forgets all recorded reports
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = nil
}
