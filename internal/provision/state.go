package provision

import "fmt"

// Phase is a step of provisioning a target.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePrepare
	PhaseCreate
	PhaseStart
	PhaseWaitReady
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhasePrepare:
		return "prepare"
	case PhaseCreate:
		return "create"
	case PhaseStart:
		return "start"
	case PhaseWaitReady:
		return "wait-ready"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// State tracks how far a deploy got so a failed deploy can be undone.
type State struct {
	Phase      Phase
	TargetName string
	ResourceID string
}

// NewState creates a provisioning state for the named resource.
func NewState(targetName string) *State {
	return &State{Phase: PhaseInit, TargetName: targetName}
}

// Advance moves to phase p
func (s *State) Advance(p Phase) {
	s.Phase = p
}

// Created records the platform identifier of the created resource
func (s *State) Created(resourceID string) {
	s.ResourceID = resourceID
	if s.Phase < PhaseCreate {
		s.Phase = PhaseCreate
	}
}

// NeedsCleanup reports whether a failed deploy left a resource behind.
// A resource exists once creation returned an identifier and the deploy
// never reached ready.
func (s *State) NeedsCleanup() bool {
	return s.ResourceID != "" && s.Phase >= PhaseCreate && s.Phase < PhaseReady
}

// Describe renders the state for error messages
func (s *State) Describe() string {
	if s.ResourceID == "" {
		return fmt.Sprintf("%s at phase %s", s.TargetName, s.Phase)
	}
	return fmt.Sprintf("%s (%s) at phase %s", s.TargetName, s.ResourceID, s.Phase)
}
