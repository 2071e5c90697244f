package policy

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrUnknownRole is returned when a role definition references a role that
// does not exist, or a check names one.
var ErrUnknownRole = errors.New("unknown role")

// ErrNoRoles is returned when a policy is built without any role definitions.
var ErrNoRoles = errors.New("no role definitions")

// snapshot is one immutable compilation of the role table. Swapped
// wholesale on reload; never mutated in place.
type snapshot struct {
	roleMasks map[string]Mask64
}

// Policy is the authorization engine: an action registry plus an
// atomically swappable compiled role table. Safe for concurrent use;
// Authorize takes no locks.
type Policy struct {
	registry *Registry
	current  atomic.Pointer[snapshot]
}

// New compiles actions and role definitions into a [Policy]. Role
// definitions map role name to the action names it grants.
func New(actions []string, roles map[string][]string) (*Policy, error) {
	registry, err := NewRegistry(actions)
	if err != nil {
		return nil, err
	}

	p := &Policy{registry: registry}
	if err := p.Reload(roles); err != nil {
		return nil, err
	}

	return p, nil
}

// Reload recompiles the role table against the existing action registry
// and swaps it in atomically. On error the previous snapshot stays active.
func (p *Policy) Reload(roles map[string][]string) error {
	if len(roles) == 0 {
		return ErrNoRoles
	}

	next := &snapshot{roleMasks: make(map[string]Mask64, len(roles))}
	for role, actions := range roles {
		if role == "" {
			return fmt.Errorf("%w: empty role name", ErrUnknownRole)
		}
		mask, err := p.registry.Compile(actions)
		if err != nil {
			return fmt.Errorf("role %s: %w", role, err)
		}
		next.roleMasks[role] = mask
	}

	p.current.Store(next)
	return nil
}

// Authorize reports whether any of the given roles grants the action.
// Roles absent from the current snapshot contribute nothing; an
// unregistered action is an error, not a denial.
func (p *Policy) Authorize(roles []string, action string) (bool, error) {
	bit, ok := p.registry.Bit(action)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	snap := p.current.Load()
	for _, role := range roles {
		if mask, ok := snap.roleMasks[role]; ok && mask.Has(bit) {
			return true, nil
		}
	}

	return false, nil
}

// MaskFor returns the combined grant mask of the given roles under the
// current snapshot.
func (p *Policy) MaskFor(roles []string) Mask64 {
	snap := p.current.Load()
	var mask Mask64
	for _, role := range roles {
		mask = mask.Union(snap.roleMasks[role])
	}
	return mask
}

// HasRole reports whether the current snapshot defines the role.
func (p *Policy) HasRole(role string) bool {
	_, ok := p.current.Load().roleMasks[role]
	return ok
}

// Roles returns the role names defined by the current snapshot.
func (p *Policy) Roles() []string {
	snap := p.current.Load()
	out := make([]string, 0, len(snap.roleMasks))
	for role := range snap.roleMasks {
		out = append(out, role)
	}
	return out
}

// Actions returns the registered action names in bit order.
func (p *Policy) Actions() []string {
	return p.registry.Actions()
}
