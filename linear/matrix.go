package linear

import "github.com/chewxy/math32"

// M4 is a column-major 4x4 matrix of float32.
type M4 [4]V4

// I returns the identity matrix.
func I() M4 { return M4{{1}, {0, 1}, {0, 0, 1}, {0, 0, 0, 1}} }

// Mul returns m ⋅ n.
func (m M4) Mul(n M4) (r M4) {
	for i := range r {
		for j := range r {
			for k := range r {
				r[i][j] += m[k][j] * n[i][k]
			}
		}
	}
	return
}

// MulV4 returns m ⋅ v.
func (m M4) MulV4(v V4) (r V4) {
	for i := range r {
		for k := range m {
			r[i] += m[k][i] * v[k]
		}
	}
	return
}

// Transpose returns the transpose of m.
func (m M4) Transpose() (r M4) {
	for i := range r {
		for j := range r {
			r[i][j] = m[j][i]
		}
	}
	return
}

// Approx reports whether every element of m is within eps of n.
func (m M4) Approx(n M4, eps float32) bool {
	for i := range m {
		for j := range m[i] {
			if math32.Abs(m[i][j]-n[i][j]) > eps {
				return false
			}
		}
	}
	return true
}

// Translate returns a translation matrix.
func Translate(v V3) M4 {
	m := I()
	m[3] = V4{v[0], v[1], v[2], 1}
	return m
}

// Rotate returns the rotation matrix of q.
// q is expected to be a unit quaternion.
func Rotate(q Q) M4 {
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.R
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z
	return M4{
		{1 - 2*(yy+zz), 2 * (xy + wz), 2 * (xz - wy), 0},
		{2 * (xy - wz), 1 - 2*(xx+zz), 2 * (yz + wx), 0},
		{2 * (xz + wy), 2 * (yz - wx), 1 - 2*(xx+yy), 0},
		{0, 0, 0, 1},
	}
}

// Perspective returns a right-handed perspective projection with
// a [0, 1] depth range.
// yfov is in radians.
func Perspective(yfov, aspect, znear, zfar float32) M4 {
	f := 1 / math32.Tan(yfov*0.5)
	d := znear - zfar
	return M4{
		{f / aspect},
		{0, f},
		{0, 0, zfar / d, -1},
		{0, 0, znear * zfar / d, 0},
	}
}

// Ortho returns a right-handed orthographic projection with
// a [0, 1] depth range.
func Ortho(left, right, bottom, top, znear, zfar float32) M4 {
	w := right - left
	h := top - bottom
	d := znear - zfar
	return M4{
		{2 / w},
		{0, 2 / h},
		{0, 0, 1 / d},
		{-(right + left) / w, -(top + bottom) / h, znear / d, 1},
	}
}
