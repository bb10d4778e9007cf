package schema

import "time"

// TabEventType classifies change-feed entries.
type TabEventType string

const (
	// TabEventOpened indicates a tab was created.
	TabEventOpened TabEventType = "opened"
	// TabEventClosed indicates a tab reached its terminal state.
	TabEventClosed TabEventType = "closed"
	// TabEventState indicates a resource-state transition.
	TabEventState TabEventType = "state"
	// TabEventForeground indicates the foreground tab changed.
	TabEventForeground TabEventType = "foreground"
	// TabEventUpdated indicates tab metadata changed (navigation, pin).
	TabEventUpdated TabEventType = "updated"
)

// TransitionReason distinguishes why a state transition committed.
type TransitionReason string

const (
	// ReasonNone marks an ordinary transition.
	ReasonNone TransitionReason = ""
	// ReasonSweep marks a transition issued by a pressure sweep.
	ReasonSweep TransitionReason = "sweep"
	// ReasonUser marks a transition requested directly by the user.
	ReasonUser TransitionReason = "user"
	// ReasonTimeout marks a revert after a transition exceeded its bound.
	ReasonTimeout TransitionReason = "timeout"
	// ReasonReleaseFailed marks a revert after the loader failed to
	// release a handle.
	ReasonReleaseFailed TransitionReason = "release_failed"
	// ReasonAcquireFailed marks a revert after the loader failed to
	// allocate a handle.
	ReasonAcquireFailed TransitionReason = "acquire_failed"
	// ReasonCanceled marks a transition abandoned before completion.
	ReasonCanceled TransitionReason = "canceled"
)

// TabEvent is one change-feed entry. Events for a given tab id are
// delivered in the order their transitions committed.
type TabEvent struct {
	Type       TabEventType     `json:"type"`
	Tab        TabSnapshot      `json:"tab"`
	OldState   TabState         `json:"old_state,omitempty"`
	NewState   TabState         `json:"new_state,omitempty"`
	Foreground TabID            `json:"foreground,omitempty"`
	Reason     TransitionReason `json:"reason,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// PressureEvent reports a committed pressure-level change.
type PressureEvent struct {
	Old       PressureLevel `json:"old"`
	New       PressureLevel `json:"new"`
	Timestamp time.Time     `json:"timestamp"`
}
