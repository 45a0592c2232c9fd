// Package owner defines the typed reference used to identify the billable
// entity that plans, usage and enforcement state belong to. The integration
// layer decides what a kind/id pair maps to; this package never resolves it.
package owner

import (
	"errors"
	"fmt"
)

var ErrInvalidRef = errors.New("owner.errors.invalid_ref")

// Ref identifies an owner by an opaque kind tag and identifier.
type Ref struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (r Ref) String() string {
	return r.Kind + "/" + r.ID
}

// Valid reports whether both parts of the reference are set.
func (r Ref) Valid() bool {
	return r.Kind != "" && r.ID != ""
}

// Parse builds a Ref from its parts, rejecting empty components.
func Parse(kind, id string) (Ref, error) {
	ref := Ref{Kind: kind, ID: id}
	if !ref.Valid() {
		return Ref{}, fmt.Errorf("%w: got %q/%q", ErrInvalidRef, kind, id)
	}
	return ref, nil
}
