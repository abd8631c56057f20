package status

// State represents processing state reported by the transcription service
type State int

const (
	// Uploaded - media accepted, not started
	Uploaded State = iota + 1
	// Processing step
	Processing
	// Processed - final step, transcript is ready
	Processed
	// Failed - final, processing failed
	Failed
	// Quarantined - final, media rejected by the service
	Quarantined
)

var (
	stateName = map[State]string{Uploaded: "Uploaded", Processing: "Processing", Processed: "Processed",
		Failed: "Failed", Quarantined: "Quarantined"}
	nameState = map[string]State{"Uploaded": Uploaded, "Processing": Processing, "Processed": Processed,
		"Failed": Failed, "Quarantined": Quarantined}
)

func (st State) String() string {
	return stateName[st]
}

// From returns state obj from string, returns 0 on unknown value
func From(st string) State {
	return nameState[st]
}

// IsTerminalError returns true if state means processing ended without a transcript
func (st State) IsTerminalError() bool {
	return st == Failed || st == Quarantined
}

// Phase represents workflow phase
type Phase int

const (
	// Polling - waiting for the transcription to finish
	Polling Phase = iota + 1
	// Completing - transcription done, indexing
	Completing
	// Completed - indexed
	Completed
	// Expired - gave up monitoring
	Expired
	// PhaseFailed - transcription or indexing failed
	PhaseFailed
)

var (
	phaseName = map[Phase]string{Polling: "POLLING", Completing: "COMPLETING", Completed: "COMPLETED",
		Expired: "EXPIRED", PhaseFailed: "FAILED"}
	namePhase = map[string]Phase{"POLLING": Polling, "COMPLETING": Completing, "COMPLETED": Completed,
		"EXPIRED": Expired, "FAILED": PhaseFailed}
)

func (ph Phase) String() string {
	return phaseName[ph]
}

// PhaseFrom returns phase obj from string
func PhaseFrom(ph string) Phase {
	return namePhase[ph]
}

// IsFinal returns true if no more work is expected for the workflow
func (ph Phase) IsFinal() bool {
	return ph == Completed || ph == Expired || ph == PhaseFailed
}
