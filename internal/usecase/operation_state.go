package usecase

import "custody/internal/domain"

type OperationState string

const (
	StateReceived         OperationState = "RECEIVED"
	StateHashed           OperationState = "HASHED"
	StateEncrypted        OperationState = "ENCRYPTED"
	StateStored           OperationState = "STORED"
	StateAudited          OperationState = "AUDITED"
	StateClearanceChecked OperationState = "CLEARANCE_CHECKED"
	StateRetrieved        OperationState = "RETRIEVED"
	StateDecrypted        OperationState = "DECRYPTED"
	StateVerified         OperationState = "VERIFIED"
	StateReleased         OperationState = "RELEASED"
	StateCompleted        OperationState = "COMPLETED"
	StateFailed           OperationState = "FAILED"
)

// OperationTrace records the states an upload or download passed through.
// A trace ends in COMPLETED or in FAILED with the error class as reason.
type OperationTrace struct {
	States        []OperationState `json:"states"`
	FailureReason string           `json:"failure_reason,omitempty"`
}

func newTrace() *OperationTrace {
	return &OperationTrace{States: []OperationState{StateReceived}}
}

func (t *OperationTrace) advance(state OperationState) {
	t.States = append(t.States, state)
}

func (t *OperationTrace) fail(err error) {
	t.States = append(t.States, StateFailed)
	t.FailureReason = domain.ErrorClass(err)
}

func (t *OperationTrace) complete() {
	t.States = append(t.States, StateCompleted)
}

// Current returns the last state reached.
func (t OperationTrace) Current() OperationState {
	if len(t.States) == 0 {
		return ""
	}
	return t.States[len(t.States)-1]
}

// Reached reports whether the trace passed through state.
func (t OperationTrace) Reached(state OperationState) bool {
	for _, s := range t.States {
		if s == state {
			return true
		}
	}
	return false
}
