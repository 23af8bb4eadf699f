package sync

import "time"

// RecordFailure describes one record's failure during a pass. Stage is the
// leg that failed: "upload", "remote-write" or "local-write".
type RecordFailure struct {
	ID    string
	Stage string
	Err   error
}

// SyncReport aggregates the outcome of one reconciliation pass. Individual
// record failures never fail the pass; they are collected here.
type SyncReport struct {
	Owner string

	// Skipped is set when the device was offline and nothing was attempted.
	Skipped bool

	// Coalesced is set when another pass for the same owner was already
	// in flight and this call was dropped.
	Coalesced bool

	// Synced counts records marked Synced this pass.
	Synced int

	// Repaired counts attachments resolved from pending to a final URL.
	Repaired int

	// Held counts records deliberately left for a later pass: still
	// carrying an unresolved attachment, or suppressed by the failure
	// lockout.
	Held int

	// Added and Replaced split the remote merge: ids new to the owner's
	// collection versus ids overwritten last-local-write-wins.
	Added    int
	Replaced int

	Failures []RecordFailure
	Duration time.Duration
}

// Clean reports whether the pass finished without any record failures.
func (r *SyncReport) Clean() bool {
	return len(r.Failures) == 0
}
