package tts

import (
	"sync"
	"time"
)

// SchedulerState is the phase of an instance's worker.
type SchedulerState int

const (
	// StateIdle indicates no worker has been started.
	StateIdle SchedulerState = iota
	// StateRunning indicates the worker is waiting for the next announcement.
	StateRunning
	// StateDucking indicates background outputs are being lowered.
	StateDucking
	// StatePreRoll indicates the pre-roll cue or delay is in progress.
	StatePreRoll
	// StateSpeaking indicates the speak request is being issued.
	StateSpeaking
	// StateAwaitingCompletion indicates the worker waits for speech to end.
	StateAwaitingCompletion
	// StatePostGrace indicates the settle delay before restoring.
	StatePostGrace
	// StateRestoring indicates ducked outputs are being restored.
	StateRestoring
	// StateStopped indicates the worker has exited for good.
	StateStopped
)

// String returns the string representation of the state.
func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDucking:
		return "ducking"
	case StatePreRoll:
		return "pre_roll"
	case StateSpeaking:
		return "speaking"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StatePostGrace:
		return "post_grace"
	case StateRestoring:
		return "restoring"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Busy returns true while an announcement is being handled.
func (s SchedulerState) Busy() bool {
	return s >= StateDucking && s <= StateRestoring
}

// StateMachine guards the worker's state transitions. It is safe for
// concurrent use; only the worker writes, anyone may read.
type StateMachine struct {
	mu          sync.RWMutex
	current     SchedulerState
	since       time.Time
	transitions map[SchedulerState][]SchedulerState
	onChange    func(from, to SchedulerState)
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		since:   time.Now(),
		transitions: map[SchedulerState][]SchedulerState{
			StateIdle:               {StateRunning, StateStopped},
			StateRunning:            {StateDucking, StateStopped},
			StateDucking:            {StatePreRoll, StateRestoring},
			StatePreRoll:            {StateSpeaking, StateRestoring},
			StateSpeaking:           {StateAwaitingCompletion, StateRestoring},
			StateAwaitingCompletion: {StatePostGrace, StateRestoring},
			StatePostGrace:          {StateRestoring},
			StateRestoring:          {StateRunning, StateStopped},
			StateStopped:            {},
		},
	}
}

// Transition attempts to move to the specified state.
func (sm *StateMachine) Transition(to SchedulerState) bool {
	sm.mu.Lock()
	from := sm.current

	valid := false
	for _, state := range sm.transitions[from] {
		if state == to {
			valid = true
			break
		}
	}
	if !valid {
		sm.mu.Unlock()
		return false
	}

	sm.current = to
	sm.since = time.Now()
	fn := sm.onChange
	sm.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() SchedulerState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Since returns when the current state was entered.
func (sm *StateMachine) Since() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.since
}

// OnChange registers a callback run after every successful transition.
func (sm *StateMachine) OnChange(fn func(from, to SchedulerState)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onChange = fn
}
