package domain

import (
	"errors"
	"strings"
	"time"
)

// ActionKind names a lifecycle action executed against a target.
type ActionKind string

const (
	ActionProvision   ActionKind = "provision"
	ActionDeprovision ActionKind = "deprovision"
	ActionDeploy      ActionKind = "deploy"
)

func NormalizeActionKind(value string) ActionKind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ActionProvision):
		return ActionProvision
	case string(ActionDeprovision):
		return ActionDeprovision
	case string(ActionDeploy):
		return ActionDeploy
	default:
		return ""
	}
}

// ActionStatus is the shared status vocabulary for action records and the
// denormalized target state. StatusNotRequested only ever appears on
// targets, before their first action.
type ActionStatus string

const (
	StatusNotRequested ActionStatus = "not_requested"
	StatusQueued       ActionStatus = "queued"
	StatusInProgress   ActionStatus = "in_progress"
	StatusSucceeded    ActionStatus = "succeeded"
	StatusFailed       ActionStatus = "failed"
)

func NormalizeActionStatus(value string) ActionStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(StatusNotRequested):
		return StatusNotRequested
	case string(StatusQueued):
		return StatusQueued
	case string(StatusInProgress), "running":
		return StatusInProgress
	case string(StatusSucceeded):
		return StatusSucceeded
	case string(StatusFailed):
		return StatusFailed
	default:
		return ""
	}
}

// Terminal reports whether no further transition is defined out of s.
func (s ActionStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition enforces forward-only status progression. Applying the
// current status again is allowed so duplicate reports stay no-ops;
// nothing leaves a terminal status.
func CanTransition(current, next ActionStatus) bool {
	if current == "" || next == "" {
		return false
	}
	if current == next {
		return true
	}
	if current.Terminal() {
		return false
	}
	return statusRank(current) < statusRank(next)
}

func statusRank(status ActionStatus) int {
	switch status {
	case StatusQueued:
		return 1
	case StatusInProgress:
		return 2
	case StatusSucceeded, StatusFailed:
		return 3
	default:
		return 0
	}
}

// ActionRecord is one auditable attempt at a lifecycle action. Records are
// never deleted; terminal records are never mutated.
type ActionRecord struct {
	ID              string
	ServiceID       string
	Tenant          string
	Kind            ActionKind
	Environment     string
	Status          ActionStatus
	Detail          string
	ExecutionHandle string
	CreatedAt       time.Time
}

func (r ActionRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("action record id is required")
	}
	if strings.TrimSpace(r.ServiceID) == "" {
		return errors.New("service id is required")
	}
	if NormalizeActionKind(string(r.Kind)) == "" {
		return errors.New("action kind is required")
	}
	if NormalizeActionStatus(string(r.Status)) == "" || r.Status == StatusNotRequested {
		return errors.New("action status is required")
	}
	if r.Kind == ActionDeploy && strings.TrimSpace(r.Environment) == "" {
		return errors.New("deploy environment is required")
	}
	if r.Status == StatusInProgress && strings.TrimSpace(r.ExecutionHandle) == "" {
		return errors.New("in_progress requires an execution handle")
	}
	return nil
}
