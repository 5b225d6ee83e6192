package engine

import "slices"

// OwnerSource exposes the host's notion of the current owner (bot) selection.
type OwnerSource interface {
	// SelectedOwner returns the owner the user has currently selected, or "".
	SelectedOwner() string
	// KnownOwners returns every owner the host knows about, in display order.
	KnownOwners() []string
}

// StaticOwners is an OwnerSource with fixed values.
type StaticOwners struct {
	Selected string
	Known    []string
}

func (s StaticOwners) SelectedOwner() string { return s.Selected }

func (s StaticOwners) KnownOwners() []string { return slices.Clone(s.Known) }

// resolveOwner returns the first non-empty candidate, then the selected owner,
// then the first known owner.
func (e *Engine) resolveOwner(candidates ...string) (string, error) {
	for _, c := range candidates {
		if c != "" {
			return c, nil
		}
	}
	if e.owners == nil {
		return "", ErrOwnerResolution
	}
	if sel := e.owners.SelectedOwner(); sel != "" {
		return sel, nil
	}
	for _, o := range e.owners.KnownOwners() {
		if o != "" {
			return o, nil
		}
	}
	return "", ErrOwnerResolution
}
