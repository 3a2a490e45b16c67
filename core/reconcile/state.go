package reconcile

import (
	"fmt"
	"time"

	"subsidy-recon/core/subsidy"
)

// State of one carrier's reconciliation
type State int

const (
	Idle State = iota
	LoadingModels
	BuildingIndexes
	Calculating
	Done
	Failed
)

var stateNames = [...]string{"Idle", "LoadingModels", "BuildingIndexes", "Calculating", "Done", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Terminal reports whether no further transition follows
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Warning is a degraded table or skipped row recorded during a run
type Warning struct {
	Table   string `json:"table"`
	Message string `json:"message"`
}

// CarrierReport is the outcome for one carrier. A Failed carrier has no
// results and Err says why.
type CarrierReport struct {
	Carrier      string            `json:"carrier"`
	State        State             `json:"state"`
	Results      []subsidy.Result  `json:"results"`
	Devices      int               `json:"devices"`
	Warnings     []Warning         `json:"warnings,omitempty"`
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
	Err          error             `json:"-"`
	Error        string            `json:"error,omitempty"`
	Retryable    bool              `json:"retryable,omitempty"`
	Duration     time.Duration     `json:"duration"`
}

func (r *CarrierReport) warn(table, msg string) {
	r.Warnings = append(r.Warnings, Warning{Table: table, Message: msg})
}

// Report is the outcome of one pipeline run, carriers in request order
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Carriers   []CarrierReport `json:"carriers"`
}

// Results flattens every carrier's results in report order
func (r *Report) Results() []subsidy.Result {
	var out []subsidy.Result
	for _, c := range r.Carriers {
		out = append(out, c.Results...)
	}
	return out
}

// Carrier returns the report for one carrier
func (r *Report) Carrier(name string) (*CarrierReport, bool) {
	for i := range r.Carriers {
		if r.Carriers[i].Carrier == name {
			return &r.Carriers[i], true
		}
	}
	return nil, false
}

// Degraded lists carriers that ended in Failed
func (r *Report) Degraded() []string {
	var out []string
	for _, c := range r.Carriers {
		if c.State == Failed {
			out = append(out, c.Carrier)
		}
	}
	return out
}
