// Package linear implements the float32 vector, quaternion and matrix math
// used by transforms and cameras.
//
// Matrices are column-major, matching the layout GPU uniform buffers expect.
package linear

import "github.com/chewxy/math32"

// V3 is a 3-component vector of float32.
type V3 [3]float32

// Add returns v + w.
func (v V3) Add(w V3) V3 { return V3{v[0] + w[0], v[1] + w[1], v[2] + w[2]} }

// Sub returns v - w.
func (v V3) Sub(w V3) V3 { return V3{v[0] - w[0], v[1] - w[1], v[2] - w[2]} }

// Scale returns s ⋅ v.
func (v V3) Scale(s float32) V3 { return V3{s * v[0], s * v[1], s * v[2]} }

// Neg returns -v.
func (v V3) Neg() V3 { return V3{-v[0], -v[1], -v[2]} }

// Dot returns v ⋅ w.
func (v V3) Dot(w V3) float32 { return v[0]*w[0] + v[1]*w[1] + v[2]*w[2] }

// Cross returns v × w.
func (v V3) Cross(w V3) V3 {
	return V3{
		v[1]*w[2] - v[2]*w[1],
		v[2]*w[0] - v[0]*w[2],
		v[0]*w[1] - v[1]*w[0],
	}
}

// Len returns the length of v.
func (v V3) Len() float32 { return math32.Sqrt(v.Dot(v)) }

// Norm returns v normalized.
// The zero vector is returned unchanged.
func (v V3) Norm() V3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// V4 is a 4-component vector of float32.
type V4 [4]float32

// Dot returns v ⋅ w.
func (v V4) Dot(w V4) float32 { return v[0]*w[0] + v[1]*w[1] + v[2]*w[2] + v[3]*w[3] }
