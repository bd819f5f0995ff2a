package core

// RunAccumulator collects counters during a single Perform call. It starts at
// zero and is copied onto the run record once the pass completes.
type RunAccumulator struct {
	stats RunStats
}

// QueryFailed counts a row that could not be dispatched or matched nothing.
func (a *RunAccumulator) QueryFailed() { a.stats.QueriesFailed++ }

// Matched counts records found by an update lookup.
func (a *RunAccumulator) Matched(n int) { a.stats.RecordsMatched += n }

// RecordUpdated counts a matched record that was persisted.
func (a *RunAccumulator) RecordUpdated() { a.stats.RecordsUpdated++ }

// RecordFailed counts a matched record that could not be persisted.
func (a *RunAccumulator) RecordFailed() { a.stats.RecordsFailed++ }

// Stats returns a snapshot of the counters.
func (a *RunAccumulator) Stats() RunStats { return a.stats }
