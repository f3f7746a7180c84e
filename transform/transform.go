// Package transform implements a parent-child transform hierarchy with
// lazily recomputed matrices, and a camera built on it.
//
// Mutating a transform marks it and its whole subtree dirty; matrices are
// only recomputed when read. Transforms and cameras are not safe for
// concurrent use; they belong to the goroutine that renders with them.
package transform

import (
	"errors"
	"weak"

	"github.com/gogpu/rhi/linear"
)

// ErrCycle is returned by SetParent when the new parent is t itself or one
// of its descendants.
var ErrCycle = errors.New("transform: parent cycle")

// Flags are the dirty bits of a Transform.
type Flags uint8

const (
	// Changed is set whenever anything about the transform changed,
	// including a recompute of its matrix. Consumers clear it with
	// ConsumeChanged.
	Changed Flags = 1 << iota
	// ParentChanged is set when the parent link or any ancestor changed.
	ParentChanged
	// PositionChanged is set when the position (own or inherited) changed.
	PositionChanged
	// OrientationChanged is set when the orientation (own or inherited)
	// changed.
	OrientationChanged

	// Dirty is the set of bits that invalidate the cached matrix.
	Dirty = ParentChanged | PositionChanged | OrientationChanged
)

// Transform is a position and orientation relative to an optional parent.
//
// The parent and children links are weak: a transform never keeps its
// relatives alive. The owner of each transform is whatever object embeds
// or references it.
type Transform struct {
	position    linear.V3
	orientation linear.Q
	matrix      linear.M4
	flags       Flags

	parented bool
	parent   weak.Pointer[Transform]
	children []weak.Pointer[Transform]
}

// New returns an identity transform with a dirty matrix.
func New() *Transform {
	return &Transform{
		orientation: linear.IQ(),
		matrix:      linear.I(),
		flags:       Changed | Dirty,
	}
}

// Position returns the local position.
func (t *Transform) Position() linear.V3 { return t.position }

// Orientation returns the local orientation.
func (t *Transform) Orientation() linear.Q { return t.orientation }

// Flags returns the current dirty bits.
func (t *Transform) Flags() Flags { return t.flags }

// IsDirty reports whether the next Matrix call will recompute.
func (t *Transform) IsDirty() bool { return t.flags&Dirty != 0 }

// ConsumeChanged reports whether Changed was set and clears it.
func (t *Transform) ConsumeChanged() bool {
	c := t.flags&Changed != 0
	t.flags &^= Changed
	return c
}

// SetPosition sets the local position. Setting the current value is a
// no-op.
func (t *Transform) SetPosition(p linear.V3) {
	if p == t.position {
		return
	}
	t.position = p
	t.mark(PositionChanged)
}

// SetOrientation sets the local orientation. Setting the current value
// is a no-op.
func (t *Transform) SetOrientation(q linear.Q) {
	if q == t.orientation {
		return
	}
	t.orientation = q
	t.mark(OrientationChanged)
}

// Translate moves t by d in parent space.
func (t *Transform) Translate(d linear.V3) { t.SetPosition(t.position.Add(d)) }

// Rotate applies q after the current orientation.
func (t *Transform) Rotate(q linear.Q) { t.SetOrientation(q.Mul(t.orientation).Norm()) }

// mark sets bits on t and every live descendant.
func (t *Transform) mark(bits Flags) {
	t.flags |= Changed | bits
	live := t.children[:0]
	for _, w := range t.children {
		c := w.Value()
		if c == nil {
			continue
		}
		live = append(live, w)
		c.mark(bits)
	}
	clear(t.children[len(live):])
	t.children = live
}

// Parent returns the parent, or nil if t is a root or its parent has been
// collected.
func (t *Transform) Parent() *Transform {
	if !t.parented {
		return nil
	}
	return t.parent.Value()
}

// Children returns the live children of t.
func (t *Transform) Children() []*Transform {
	out := make([]*Transform, 0, len(t.children))
	for _, w := range t.children {
		if c := w.Value(); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// SetParent reparents t. A nil parent detaches t.
func (t *Transform) SetParent(p *Transform) error {
	if p == t.Parent() && (p != nil || !t.parented) {
		return nil
	}
	for a := p; a != nil; a = a.Parent() {
		if a == t {
			return ErrCycle
		}
	}
	t.detach()
	if p != nil {
		t.parent = weak.Make(p)
		t.parented = true
		p.children = append(p.children, weak.Make(t))
	}
	t.mark(ParentChanged)
	return nil
}

// detach unlinks t from its parent without marking it.
func (t *Transform) detach() {
	if !t.parented {
		return
	}
	if old := t.parent.Value(); old != nil {
		me := weak.Make(t)
		for i, w := range old.children {
			if w == me {
				old.children = append(old.children[:i], old.children[i+1:]...)
				break
			}
		}
	}
	t.parent = weak.Pointer[Transform]{}
	t.parented = false
}

// Matrix returns the world matrix parent ⋅ T(position) ⋅ R(orientation),
// recomputing it if any dirty bit is set.
func (t *Transform) Matrix() linear.M4 {
	if t.parented && t.parent.Value() == nil {
		// Parent collected: behave as a root from now on.
		t.parented = false
		t.flags |= Changed | ParentChanged
	}
	if t.flags&Dirty == 0 {
		return t.matrix
	}
	m := linear.Translate(t.position).Mul(linear.Rotate(t.orientation))
	if p := t.Parent(); p != nil {
		m = p.Matrix().Mul(m)
	}
	t.matrix = m
	t.flags &^= Dirty
	t.flags |= Changed
	return m
}

// WorldPosition returns the translation part of Matrix.
func (t *Transform) WorldPosition() linear.V3 {
	m := t.Matrix()
	return linear.V3{m[3][0], m[3][1], m[3][2]}
}

// WorldOrientation returns the orientation composed with every ancestor's.
func (t *Transform) WorldOrientation() linear.Q {
	q := t.orientation
	for p := t.Parent(); p != nil; p = p.Parent() {
		q = p.orientation.Mul(q)
	}
	return q.Norm()
}
