package domain

import "time"

// Counters aggregates the observable effects of a step or run.
type Counters struct {
	SignalsIngested   int `json:"signals_ingested"`
	SignalsDuplicate  int `json:"signals_duplicate"`
	NodesCreated      int `json:"nodes_created"`
	NodesMerged       int `json:"nodes_merged"`
	DeadLetters       int `json:"dead_letters"`
	SkippedInputs     int `json:"skipped_inputs"`
	TagsApplied       int `json:"tags_applied"`
	TagsDiscarded     int `json:"tags_discarded"`
	ClassifierBatches int `json:"classifier_batches"`
	ScoresUpdated     int `json:"scores_updated"`
	IndexUpserts      int `json:"index_upserts"`
	DriftDetected     int `json:"drift_detected"`
}

// Add accumulates other into c.
func (c *Counters) Add(other Counters) {
	c.SignalsIngested += other.SignalsIngested
	c.SignalsDuplicate += other.SignalsDuplicate
	c.NodesCreated += other.NodesCreated
	c.NodesMerged += other.NodesMerged
	c.DeadLetters += other.DeadLetters
	c.SkippedInputs += other.SkippedInputs
	c.TagsApplied += other.TagsApplied
	c.TagsDiscarded += other.TagsDiscarded
	c.ClassifierBatches += other.ClassifierBatches
	c.ScoresUpdated += other.ScoresUpdated
	c.IndexUpserts += other.IndexUpserts
	c.DriftDetected += other.DriftDetected
}

// StepReport is one step's outcome in a run summary.
type StepReport struct {
	Name     StepName
	Status   StepStatus
	Counters Counters
	Error    string
	Skipped  bool // completed in an earlier attempt of the run
	Duration time.Duration
}

// Alert is raised when a source's dead-letter volume crosses the threshold.
type Alert struct {
	RunID       string
	CityID      string
	SourceType  SourceType
	DeadLetters int
	Threshold   int
	RaisedAt    time.Time
}

// RunSummary is the result of SeedCity.
type RunSummary struct {
	RunID         string
	CityID        string
	Mode          SeedMode
	Status        RunStatus
	Steps         []StepReport
	Totals        Counters
	Alerts        []Alert
	DriftWarnings []string
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Trustworthy reports whether the run finished cleanly with no dead letters,
// skipped inputs, alerts or drift.
func (s *RunSummary) Trustworthy() bool {
	return s.Status == RunCompleted &&
		s.Totals.DeadLetters == 0 &&
		len(s.Alerts) == 0 &&
		len(s.DriftWarnings) == 0
}
