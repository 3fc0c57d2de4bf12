package agent

import (
	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/oscillator"
)

// Spec describes an agent to construct.
type Spec struct {
	Name   string                    `json:"name" yaml:"name"`
	Role   Role                      `json:"role" yaml:"role"`
	Primes []int                     `json:"primes" yaml:"primes"`
	Seeds  map[int][]oscillator.Seed `json:"seeds,omitempty" yaml:"seeds"`
}

// DefaultSender returns a sender spec over the given primes.
func DefaultSender(primes []int) Spec {
	return Spec{Name: "alice", Role: RoleSender, Primes: primes}
}

// DefaultReceiver returns a receiver spec over the given primes.
func DefaultReceiver(primes []int) Spec {
	return Spec{Name: "bob", Role: RoleReceiver, Primes: primes}
}

// Validate checks the spec.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return errors.ValidationError(errors.ErrValidationRequired, "agent name is required").
			WithContext("field", "name")
	}
	if !s.Role.IsValid() {
		return errors.ValidationErrorf(errors.ErrValidationInvalidValue, "invalid role %q", s.Role).
			WithContext("field", "role").
			WithSuggestion("Use one of: sender, receiver, observer")
	}
	if len(s.Primes) == 0 {
		return errors.ValidationError(errors.ErrValidationRequired, "at least one prime is required").
			WithContext("field", "primes").
			WithContext("agent", s.Name)
	}
	return nil
}
