package reconciler

import (
	"time"
)

// Pipeline steps reported through ProgressCallback
const (
	StepParse      = "parse"
	StepCategorize = "categorize"
	StepStatistics = "statistics"
	StepMatch      = "match"
	StepAnomalies  = "anomalies"
	StepAggregate  = "aggregate"
	totalCoreSteps = 5
	totalFileSteps = totalCoreSteps + 1
)

// Progress describes how far a single run has got
type Progress struct {
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`

	BankTransactions int `json:"bank_transactions"`
	InternalRecords  int `json:"internal_records"`
	MatchesFound     int `json:"matches_found"`
}

// ProgressCallback is called after every completed step of a run. Callbacks
// run on the reconciling goroutine and receive a copy.
type ProgressCallback func(Progress)

// progressTracker belongs to one run, so concurrent runs never share state
type progressTracker struct {
	current   Progress
	callbacks []ProgressCallback
}

func newProgressTracker(totalSteps int, callbacks []ProgressCallback) *progressTracker {
	return &progressTracker{
		current: Progress{
			TotalSteps: totalSteps,
			StartTime:  time.Now(),
		},
		callbacks: callbacks,
	}
}

// complete records that step has finished and notifies the callbacks
func (pt *progressTracker) complete(step string, update func(*Progress)) {
	if pt == nil {
		return
	}

	pt.current.CompletedSteps++
	pt.current.CurrentStep = step
	pt.current.ElapsedTime = time.Since(pt.current.StartTime)
	pt.current.PercentComplete = float64(pt.current.CompletedSteps) / float64(pt.current.TotalSteps) * 100
	if update != nil {
		update(&pt.current)
	}

	for _, callback := range pt.callbacks {
		callback(pt.current)
	}
}
