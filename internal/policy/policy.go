// Package policy decides which room status changes are structurally legal and
// which targets an actor role may request. A Policy is built once at start-up
// and shared read-only.
package policy

import (
	"sort"
	"strings"

	"room-status-backend/internal/status"
)

// Role is the coarse actor role attached to a signed front-door link.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
)

// NormalizeRole lower-cases and trims a raw role string.
func NormalizeRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// Policy holds the adjacency table and the role target sets.
type Policy struct {
	transitions map[status.Status]map[status.Status]struct{}
	roles       map[Role]map[status.Status]struct{}
}

// New builds a Policy from the given tables. The tables are copied.
func New(transitions map[status.Status][]status.Status, roles map[Role][]status.Status) *Policy {
	p := &Policy{
		transitions: make(map[status.Status]map[status.Status]struct{}, len(transitions)),
		roles:       make(map[Role]map[status.Status]struct{}, len(roles)),
	}
	for from, targets := range transitions {
		p.transitions[from] = toSet(targets)
	}
	for role, targets := range roles {
		p.roles[role] = toSet(targets)
	}
	return p
}

// Default returns the clinic room policy.
func Default() *Policy {
	return New(
		map[status.Status][]status.Status{
			status.Available:      {status.Waiting, status.Maintenance, status.OutOfService},
			status.Waiting:        {status.SeeingProvider, status.Maintenance, status.OutOfService},
			status.SeeingProvider: {status.NeedsCleaning, status.Maintenance, status.OutOfService},
			status.NeedsCleaning:  {status.Cleaning, status.Maintenance, status.OutOfService},
			status.Cleaning:       {status.Available, status.Maintenance, status.OutOfService},
			status.Maintenance:    {status.Available, status.OutOfService},
			status.OutOfService:   {status.Available, status.Maintenance},
		},
		map[Role][]status.Status{
			RolePatient:  {status.Waiting},
			RoleProvider: {status.SeeingProvider, status.NeedsCleaning, status.Cleaning, status.Available},
		},
	)
}

// IsTransitionAllowed reports whether a room may move from old to new.
// A self-transition is always allowed.
func (p *Policy) IsTransitionAllowed(old, new status.Status) bool {
	if old == new {
		return true
	}
	_, ok := p.transitions[old][new]
	return ok
}

// Targets returns every status reachable from current, excluding current,
// sorted by token.
func (p *Policy) Targets(current status.Status) []status.Status {
	out := make([]status.Status, 0, len(p.transitions[current]))
	for target := range p.transitions[current] {
		if target != current {
			out = append(out, target)
		}
	}
	sortStatuses(out)
	return out
}

// AllowedTargetsForRole returns the statuses a role may request from current.
// Unknown roles get an empty result.
func (p *Policy) AllowedTargetsForRole(role Role, current status.Status) []status.Status {
	roleTargets := p.roles[NormalizeRole(string(role))]
	out := make([]status.Status, 0, len(roleTargets))
	for target := range roleTargets {
		if target != current && p.IsTransitionAllowed(current, target) {
			out = append(out, target)
		}
	}
	sortStatuses(out)
	return out
}

// KnownRole reports whether the role has a target set.
func (p *Policy) KnownRole(role Role) bool {
	_, ok := p.roles[NormalizeRole(string(role))]
	return ok
}

// Roles returns the configured roles sorted by name.
func (p *Policy) Roles() []Role {
	out := make([]Role, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func toSet(values []status.Status) map[status.Status]struct{} {
	set := make(map[status.Status]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func sortStatuses(s []status.Status) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
