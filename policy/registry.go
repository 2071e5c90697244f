package policy

import (
	"errors"
	"fmt"
	"sort"
)

// MaxActions is the capacity of one policy domain.
const MaxActions = 64

// ErrTooManyActions is returned when registration would exceed [MaxActions].
var ErrTooManyActions = errors.New("action registry full")

// ErrDuplicateAction is returned when an action name registers twice.
var ErrDuplicateAction = errors.New("duplicate action")

// ErrUnknownAction is returned for authorization checks against an
// unregistered action name.
var ErrUnknownAction = errors.New("unknown action")

// Mask64 is a compiled grant set: bit i set means the action assigned bit i
// is allowed.
type Mask64 uint64

// Has reports whether the mask grants the action at the given bit.
func (m Mask64) Has(bit uint8) bool {
	return m&(1<<bit) != 0
}

// With returns the mask with the action at the given bit granted.
func (m Mask64) With(bit uint8) Mask64 {
	return m | (1 << bit)
}

// Union returns the union of both grant sets.
func (m Mask64) Union(other Mask64) Mask64 {
	return m | other
}

// Registry assigns stable bit positions to action names. Bits are handed
// out in registration order and never reassigned, so masks stay comparable
// across role reloads. Registration happens during construction; lookups
// afterwards are read-only and need no lock.
type Registry struct {
	bits  map[string]uint8
	names []string
}

// NewRegistry builds a registry from the given action names. Order is
// normalized so equivalent inputs produce identical bit assignments.
func NewRegistry(actions []string) (*Registry, error) {
	if len(actions) > MaxActions {
		return nil, fmt.Errorf("%w: %d actions, max %d", ErrTooManyActions, len(actions), MaxActions)
	}

	sorted := make([]string, len(actions))
	copy(sorted, actions)
	sort.Strings(sorted)

	r := &Registry{
		bits:  make(map[string]uint8, len(sorted)),
		names: make([]string, 0, len(sorted)),
	}

	for _, name := range sorted {
		if name == "" {
			return nil, errors.New("empty action name")
		}
		if _, exists := r.bits[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, name)
		}
		r.bits[name] = uint8(len(r.names))
		r.names = append(r.names, name)
	}

	return r, nil
}

// Bit returns the bit position assigned to an action name.
func (r *Registry) Bit(name string) (uint8, bool) {
	bit, ok := r.bits[name]
	return bit, ok
}

// Actions returns the registered action names in bit order.
func (r *Registry) Actions() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Compile folds a list of action names into a grant mask.
func (r *Registry) Compile(actions []string) (Mask64, error) {
	var mask Mask64
	for _, name := range actions {
		bit, ok := r.bits[name]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownAction, name)
		}
		mask = mask.With(bit)
	}
	return mask, nil
}
