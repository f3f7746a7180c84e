package linear

import "github.com/chewxy/math32"

// Q is a quaternion of float32.
// V holds the imaginary part and R the real part.
type Q struct {
	V V3
	R float32
}

// IQ returns the identity quaternion.
func IQ() Q { return Q{R: 1} }

// Rotation returns a quaternion rotating angle radians about axis.
// axis need not be normalized.
func Rotation(angle float32, axis V3) Q {
	s, c := math32.Sincos(angle * 0.5)
	return Q{V: axis.Norm().Scale(s), R: c}
}

// Mul returns q ⋅ r.
func (q Q) Mul(r Q) Q {
	v := r.V.Scale(q.R).Add(q.V.Scale(r.R)).Add(q.V.Cross(r.V))
	return Q{V: v, R: q.R*r.R - q.V.Dot(r.V)}
}

// Conj returns the conjugate of q.
func (q Q) Conj() Q { return Q{V: q.V.Neg(), R: q.R} }

// Len returns the norm of q.
func (q Q) Len() float32 { return math32.Sqrt(q.V.Dot(q.V) + q.R*q.R) }

// Norm returns q normalized.
// The zero quaternion normalizes to the identity.
func (q Q) Norm() Q {
	l := q.Len()
	if l == 0 {
		return IQ()
	}
	return Q{V: q.V.Scale(1 / l), R: q.R / l}
}
