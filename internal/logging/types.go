package logging

import "time"

// Stage names written to provenance_log.stage.
const (
	StageAdjust  = "adjust"
	StageProject = "project"
)

// #region stage-entry
// StageEntry is a single row in the provenance_log table.
type StageEntry struct {
	ID         int64
	RunID      string
	Stage      string // "adjust" | "project"
	InputsJSON string
	OutputJSON string
	Ethics     string // name of the ethical adjuster in use
	Reason     string
	CreatedAt  time.Time
}
// #endregion stage-entry

// #region adjust-inputs
// AdjustInputs is serialized into InputsJSON for adjust entries so a run can
// be re-derived later.
type AdjustInputs struct {
	Current    map[string]float64 `json:"current"`
	Historical map[string]float64 `json:"historical"`
	Adaptive   map[string]float64 `json:"adaptive"`
}

// ProjectInputs is serialized into InputsJSON for project entries.
type ProjectInputs struct {
	Base          map[string]float64 `json:"base"`
	Iterations    int                `json:"iterations"`
	ScalingFactor float64            `json:"scaling_factor"`
	Tuning        string             `json:"tuning"`
	Seed          uint64             `json:"seed,omitempty"`
}
// #endregion adjust-inputs
