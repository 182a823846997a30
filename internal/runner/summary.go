package runner

import (
	"fmt"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/json"
)

// Result is the outcome of one dataset: either a location and row count,
// or an error message.
type Result struct {
	URL   string
	Rows  int
	Error string
}

// Failed reports whether the dataset produced no snapshot.
func (r Result) Failed() bool {
	return r.Error != ""
}

// MarshalJSON renders {"url":...,"registros":...} or {"error":...}.
func (r Result) MarshalJSON() ([]byte, error) {
	w := json.NewObjectWriter(64)
	if r.Failed() {
		if err := w.WriteField("error", r.Error); err != nil {
			return nil, err
		}
		return w.Bytes(), nil
	}
	if err := w.WriteField("url", r.URL); err != nil {
		return nil, err
	}
	if err := w.WriteField("registros", r.Rows); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Summary maps dataset names to results, in the order they ran.
type Summary struct {
	names   []string
	results map[string]Result
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{results: make(map[string]Result)}
}

// Set records the result of a dataset. Setting a name twice keeps its
// original position.
func (s *Summary) Set(name string, r Result) {
	if _, ok := s.results[name]; !ok {
		s.names = append(s.names, name)
	}
	s.results[name] = r
}

// Get returns the result recorded for name.
func (s *Summary) Get(name string) (Result, bool) {
	r, ok := s.results[name]
	return r, ok
}

// Names returns dataset names in run order.
func (s *Summary) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of datasets recorded.
func (s *Summary) Len() int {
	return len(s.names)
}

// Failures counts the datasets that failed.
func (s *Summary) Failures() int {
	n := 0
	for _, r := range s.results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// MarshalJSON renders the summary as one object keyed by dataset name.
func (s *Summary) MarshalJSON() ([]byte, error) {
	w := json.NewObjectWriter(256)
	for _, name := range s.names {
		if err := w.WriteField(name, s.results[name]); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// Failure is the single object printed when a run cannot start.
type Failure struct {
	Error string `json:"error"`
}

// SetupFailure builds the Failure for a run against kind that failed
// before any dataset ran.
func SetupFailure(kind config.SourceKind, err error) Failure {
	return Failure{Error: fmt.Sprintf("Error general en script %s: %s", kind.DisplayName(), errors.Message(err))}
}
