package jobs

import (
	"slices"
	"sync"
	"time"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/model"
)

// JobDescriptor declares one opaque unit of work: what triggers it, which
// fields it reads and produces and which event it emits once done.
type JobDescriptor struct {
	Name    string
	Trigger event.DetailType
	Inputs  []string
	Outputs []string
	// Emits is empty for jobs without an outgoing event.
	Emits   event.DetailType
	Phase   model.Phase
	Timeout time.Duration
	Image   string
}

func (d JobDescriptor) validate() error {
	if d.Name == "" {
		return errs.Wrapf(ErrInvalidDescriptor, "name is required")
	}

	if d.Timeout <= 0 {
		return errs.Wrapf(ErrInvalidDescriptor, d.Name+": timeout must be positive")
	}

	if d.Phase != model.PhaseNone {
		err := d.Phase.Validate()
		if err != nil {
			return errs.Wrap(ErrInvalidDescriptor, err)
		}
	}

	trigger, ok := event.Lookup(d.Trigger)
	if !ok {
		return errs.Wrap(ErrInvalidDescriptor, errs.Wrapf(event.ErrUnknownDetailType, string(d.Trigger)))
	}

	for _, in := range d.Inputs {
		if !trigger.Carries(in) {
			return errs.Wrapf(ErrUndeclaredInput, d.Name+": "+in)
		}
	}

	if d.Emits == "" {
		if len(d.Outputs) > 0 {
			return errs.Wrapf(ErrExtraOutput, d.Name+": job emits no event")
		}

		return nil
	}

	emitted, ok := event.Lookup(d.Emits)
	if !ok {
		return errs.Wrap(ErrInvalidDescriptor, errs.Wrapf(event.ErrUnknownDetailType, string(d.Emits)))
	}

	for _, out := range d.Outputs {
		if !emitted.Carries(out) || !trigger.CanProduce(out) {
			return errs.Wrapf(ErrExtraOutput, d.Name+": "+out)
		}
	}

	for _, field := range emitted.Required {
		if field == event.FieldTenantID || slices.Contains(d.Outputs, field) {
			continue
		}

		return errs.Wrapf(ErrUncoveredField, d.Name+": "+field)
	}

	return nil
}

// Table maps detail types to the jobs they trigger. It is filled once at
// startup and only read afterwards.
type Table struct {
	mu    sync.RWMutex
	jobs  map[event.DetailType][]JobDescriptor
	names map[string]struct{}
}

func NewTable() *Table {
	return &Table{
		jobs:  make(map[event.DetailType][]JobDescriptor),
		names: make(map[string]struct{}),
	}
}

// Register validates d against the event schemas and adds it to the table.
func (t *Table) Register(d JobDescriptor) error {
	err := d.validate()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, found := t.names[d.Name]; found {
		return errs.Wrapf(ErrDuplicateJob, d.Name)
	}

	d.Inputs = slices.Clone(d.Inputs)
	d.Outputs = slices.Clone(d.Outputs)

	t.names[d.Name] = struct{}{}
	t.jobs[d.Trigger] = append(t.jobs[d.Trigger], d)

	return nil
}

// For returns the jobs triggered by detailType.
func (t *Table) For(detailType event.DetailType) []JobDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Clone(t.jobs[detailType])
}

// Triggers lists the detail types with at least one job.
func (t *Table) Triggers() []event.DetailType {
	t.mu.RLock()
	defer t.mu.RUnlock()

	triggers := make([]event.DetailType, 0, len(t.jobs))
	for dt := range t.jobs {
		triggers = append(triggers, dt)
	}

	slices.Sort(triggers)

	return triggers
}

// ProvisioningJob is the job run for ONBOARDING_REQUEST.
func ProvisioningJob(timeout time.Duration, image string) JobDescriptor {
	return JobDescriptor{
		Name:    "provision",
		Trigger: event.OnboardingRequest,
		Inputs: []string{
			event.FieldTenantID,
			event.FieldTier,
			event.FieldTenantName,
			event.FieldEmail,
			event.FieldTenantStatus,
		},
		Outputs: []string{event.FieldTenantConfig, event.FieldTenantStatus},
		Emits:   event.ProvisionSuccess,
		Phase:   model.PhaseProvision,
		Timeout: timeout,
		Image:   image,
	}
}

// DeprovisioningJob is the job run for OFFBOARDING_REQUEST.
func DeprovisioningJob(timeout time.Duration, image string) JobDescriptor {
	return JobDescriptor{
		Name:    "deprovision",
		Trigger: event.OffboardingRequest,
		Inputs:  []string{event.FieldTenantID, event.FieldTier},
		Outputs: []string{event.FieldTenantStatus},
		Emits:   event.DeprovisionSuccess,
		Phase:   model.PhaseDeprovision,
		Timeout: timeout,
		Image:   image,
	}
}
