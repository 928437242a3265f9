package rules

import (
	"slices"
	"sync/atomic"
	"time"
)

// Clock supplies the current time in the club's location.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in Loc.
type RealClock struct {
	Loc *time.Location
}

func (c RealClock) Now() time.Time {
	if c.Loc == nil {
		return time.Now()
	}
	return time.Now().In(c.Loc)
}

// Validator checks requests against a policy that can be replaced while requests are in
// flight. Each call works on the policy that was current when it started.
type Validator struct {
	policy atomic.Pointer[Policy]
	clock  Clock
}

// NewValidator returns a validator reading the time from clock.
func NewValidator(p Policy, clock Clock) *Validator {
	if clock == nil {
		clock = RealClock{}
	}
	v := &Validator{clock: clock}
	v.SetPolicy(p)
	return v
}

// SetPolicy replaces the policy for subsequent calls.
func (v *Validator) SetPolicy(p Policy) {
	p.ValidStartTimes = slices.Clone(p.ValidStartTimes)
	v.policy.Store(&p)
}

// Policy returns the current policy.
func (v *Validator) Policy() Policy {
	return *v.policy.Load()
}

// Now is the validator's clock.
func (v *Validator) Now() time.Time {
	return v.clock.Now()
}

// Validate checks req against the current policy.
func (v *Validator) Validate(req Request, existing []Booking) error {
	p := v.policy.Load()
	return Validate(req, *p, existing, v.clock.Now())
}
