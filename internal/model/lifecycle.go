package model

import (
	"slices"
	"time"

	"github.com/looplab/fsm"
)

// Transition is a lifecycle event moving a tenant between statuses.
type Transition string

const (
	TransitionRequest             Transition = "request"
	TransitionBeginProvision      Transition = "begin-provision"
	TransitionCompleteProvision   Transition = "complete-provision"
	TransitionFail                Transition = "fail"
	TransitionBeginDeprovision    Transition = "begin-deprovision"
	TransitionCompleteDeprovision Transition = "complete-deprovision"
)

func (t Transition) String() string {
	return string(t)
}

var lifecycleEvents = fsm.Events{
	{
		Name: TransitionRequest.String(),
		Src:  []string{TenantStatusFailed.String()},
		Dst:  TenantStatusRequested.String(),
	},
	{
		Name: TransitionBeginProvision.String(),
		Src:  []string{TenantStatusRequested.String(), TenantStatusProvisioning.String()},
		Dst:  TenantStatusProvisioning.String(),
	},
	{
		Name: TransitionCompleteProvision.String(),
		Src:  []string{TenantStatusRequested.String(), TenantStatusProvisioning.String()},
		Dst:  TenantStatusActive.String(),
	},
	{
		Name: TransitionFail.String(),
		Src:  []string{TenantStatusProvisioning.String(), TenantStatusDeprovisioning.String()},
		Dst:  TenantStatusFailed.String(),
	},
	{
		Name: TransitionBeginDeprovision.String(),
		Src: []string{
			TenantStatusActive.String(),
			TenantStatusFailed.String(),
			TenantStatusDeprovisioning.String(),
		},
		Dst: TenantStatusDeprovisioning.String(),
	},
	{
		Name: TransitionCompleteDeprovision.String(),
		Src:  []string{TenantStatusDeprovisioning.String()},
		Dst:  TenantStatusDeleted.String(),
	},
}

// retryPhase is the failed phase a transition out of FAILED re-enters.
var retryPhase = map[Transition]Phase{
	TransitionRequest:          PhaseProvision,
	TransitionBeginDeprovision: PhaseDeprovision,
}

// Guard is the compare-and-set precondition of a transition. Stores turn it
// into the WHERE clause of a conditional update.
type Guard struct {
	Transition Transition
	Target     TenantStatus
	// From are sources accepted unconditionally.
	From []TenantStatus
	// Reclaim are in-progress sources accepted only once their claim expired.
	Reclaim []TenantStatus
	// RetryPhase restricts a FAILED source to tenants failed in that phase.
	RetryPhase Phase
}

// GuardFor derives the guard of t from the lifecycle table.
func GuardFor(t Transition) (Guard, error) {
	for _, e := range lifecycleEvents {
		if e.Name != t.String() {
			continue
		}

		g := Guard{Transition: t, Target: TenantStatus(e.Dst)}

		for _, src := range e.Src {
			switch {
			case src == e.Dst:
				g.Reclaim = append(g.Reclaim, TenantStatus(src))
			case src == TenantStatusFailed.String():
				g.From = append(g.From, TenantStatus(src))
				g.RetryPhase = retryPhase[t]
			default:
				g.From = append(g.From, TenantStatus(src))
			}
		}

		return g, nil
	}

	return Guard{}, ErrUnknownTransition
}

// Sources lists every status the guard may match.
func (g Guard) Sources() []TenantStatus {
	return append(slices.Clone(g.From), g.Reclaim...)
}

// StatusGuard matches tenants in one of the statuses without moving them
// along the lifecycle.
func StatusGuard(statuses ...TenantStatus) Guard {
	return Guard{From: statuses}
}

// Allows reports whether the tenant currently satisfies the guard.
func (g Guard) Allows(t *Tenant, now time.Time) bool {
	if g.Transition != "" && !CanTransition(t.Status, g.Transition) {
		return false
	}

	if !slices.Contains(g.Sources(), t.Status) {
		return false
	}

	if t.Status == TenantStatusFailed && g.RetryPhase != PhaseNone && t.FailedPhase != g.RetryPhase {
		return false
	}

	if slices.Contains(g.Reclaim, t.Status) {
		return t.ClaimExpired(now)
	}

	return true
}

// CanTransition reports whether the lifecycle has an edge for t out of status.
func CanTransition(status TenantStatus, t Transition) bool {
	return fsm.NewFSM(status.String(), lifecycleEvents, fsm.Callbacks{}).Can(t.String())
}
