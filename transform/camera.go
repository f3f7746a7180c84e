package transform

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/rhi/linear"
)

// ViewMode selects how a Camera derives its view matrix.
type ViewMode uint8

const (
	// FirstPerson moves the world opposite to the camera:
	// view = T(-position) ⋅ R(conj(orientation)), in world space.
	FirstPerson ViewMode = iota
	// Orbital places the camera as a satellite around a pivot at
	// position: view = R(orientation) ⋅ T(position). Orbit clamps pitch.
	Orbital
	// OrbitalFree is Orbital without the pitch clamp; Orbit composes
	// rotations freely.
	OrbitalFree
)

func (m ViewMode) String() string {
	switch m {
	case FirstPerson:
		return "FirstPerson"
	case Orbital:
		return "Orbital"
	case OrbitalFree:
		return "OrbitalFree"
	default:
		return fmt.Sprintf("ViewMode(%d)", uint8(m))
	}
}

// ProjectionMode selects the projection matrix.
type ProjectionMode uint8

const (
	Perspective ProjectionMode = iota
	Orthographic
)

func (m ProjectionMode) String() string {
	switch m {
	case Perspective:
		return "Perspective"
	case Orthographic:
		return "Orthographic"
	default:
		return fmt.Sprintf("ProjectionMode(%d)", uint8(m))
	}
}

// Field of view limits in degrees.
const (
	MinFieldOfView = 0.01
	MaxFieldOfView = 179.9
)

const (
	minZoom  = 1e-4
	minNear  = 1e-6
	maxPitch = 89 * math32.Pi / 180
)

// Camera derives view and projection matrices from a Transform.
//
// The view is built from the transform's world position and orientation,
// so a camera parented to another transform follows it.
//
// The view, projection and combined matrices are cached separately.
// Projection parameters invalidate only the projection; the view mode and
// the transform invalidate only the view; either invalidates the combined
// matrix.
type Camera struct {
	t *Transform

	fov       float32 // degrees
	zoom      float32
	near, far float32
	aspect    float32
	viewMode  ViewMode
	projMode  ProjectionMode

	yaw, pitch float32

	view, proj, combined                linear.M4
	viewValid, projValid, combinedValid bool
}

// NewCamera returns a perspective first-person camera with a 60 degree
// field of view, unit zoom, clip planes [0.1, 1000] and a square viewport.
func NewCamera() *Camera {
	return &Camera{
		t:      New(),
		fov:    60,
		zoom:   1,
		near:   0.1,
		far:    1000,
		aspect: 1,
	}
}

// Transform returns the camera's transform. Mutating it invalidates the
// view matrix.
func (c *Camera) Transform() *Transform { return c.t }

// FieldOfView returns the vertical field of view in degrees.
func (c *Camera) FieldOfView() float32 { return c.fov }

// SetFieldOfView sets the vertical field of view in degrees, clamped to
// [MinFieldOfView, MaxFieldOfView].
func (c *Camera) SetFieldOfView(deg float32) {
	deg = min(max(deg, MinFieldOfView), MaxFieldOfView)
	if deg == c.fov {
		return
	}
	c.fov = deg
	c.invalidateProjection()
}

// Zoom returns the zoom factor.
func (c *Camera) Zoom() float32 { return c.zoom }

// SetZoom sets the zoom factor. Perspective cameras narrow the field of
// view by it; orthographic cameras shrink the visible extent.
func (c *Camera) SetZoom(z float32) {
	z = max(z, minZoom)
	if z == c.zoom {
		return
	}
	c.zoom = z
	c.invalidateProjection()
}

// NearClippingPlane returns the near plane distance.
func (c *Camera) NearClippingPlane() float32 { return c.near }

// FarClippingPlane returns the far plane distance.
func (c *Camera) FarClippingPlane() float32 { return c.far }

// SetNearClippingPlane sets the near plane. If it ends up beyond the far
// plane the two are swapped.
func (c *Camera) SetNearClippingPlane(n float32) {
	c.setClip(max(n, minNear), c.far)
}

// SetFarClippingPlane sets the far plane. If it ends up in front of the
// near plane the two are swapped.
func (c *Camera) SetFarClippingPlane(f float32) {
	c.setClip(c.near, max(f, minNear))
}

func (c *Camera) setClip(n, f float32) {
	if n > f {
		n, f = f, n
	}
	c.near, c.far = n, f
	c.invalidateProjection()
}

// Aspect returns the viewport aspect ratio.
func (c *Camera) Aspect() float32 { return c.aspect }

// SetViewport derives the aspect ratio from a render target size.
// Zero sizes are ignored.
func (c *Camera) SetViewport(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	a := float32(width) / float32(height)
	if a == c.aspect {
		return
	}
	c.aspect = a
	c.invalidateProjection()
}

// ViewMode returns the view mode.
func (c *Camera) ViewMode() ViewMode { return c.viewMode }

// SetViewMode sets the view mode.
func (c *Camera) SetViewMode(m ViewMode) {
	if m == c.viewMode {
		return
	}
	c.viewMode = m
	c.invalidateView()
}

// ProjectionMode returns the projection mode.
func (c *Camera) ProjectionMode() ProjectionMode { return c.projMode }

// SetProjectionMode sets the projection mode.
func (c *Camera) SetProjectionMode(m ProjectionMode) {
	if m == c.projMode {
		return
	}
	c.projMode = m
	c.invalidateProjection()
}

// Orbit turns the camera by yaw about the Y axis and pitch about the X
// axis, in radians. In Orbital and FirstPerson modes the accumulated pitch
// is clamped short of the poles; OrbitalFree composes rotations without
// limit.
func (c *Camera) Orbit(yaw, pitch float32) {
	if c.viewMode == OrbitalFree {
		q := linear.Rotation(yaw, linear.V3{0, 1, 0}).
			Mul(linear.Rotation(pitch, linear.V3{1, 0, 0}))
		c.t.SetOrientation(q.Mul(c.t.Orientation()).Norm())
		return
	}
	c.yaw += yaw
	c.pitch = min(max(c.pitch+pitch, -maxPitch), maxPitch)
	q := linear.Rotation(c.pitch, linear.V3{1, 0, 0}).
		Mul(linear.Rotation(c.yaw, linear.V3{0, 1, 0}))
	c.t.SetOrientation(q.Norm())
}

func (c *Camera) invalidateView() {
	c.viewValid = false
	c.combinedValid = false
}

func (c *Camera) invalidateProjection() {
	c.projValid = false
	c.combinedValid = false
}

// validateTransform invalidates the view if the transform changed since
// the last check.
func (c *Camera) validateTransform() {
	if c.t.IsDirty() {
		c.t.Matrix()
	}
	if c.t.ConsumeChanged() {
		c.invalidateView()
	}
}

// ViewMatrix returns the view matrix.
func (c *Camera) ViewMatrix() linear.M4 {
	c.validateTransform()
	if c.viewValid {
		return c.view
	}
	pos, q := c.t.WorldPosition(), c.t.WorldOrientation()
	switch c.viewMode {
	case FirstPerson:
		c.view = linear.Translate(pos.Neg()).Mul(linear.Rotate(q.Conj()))
	default:
		c.view = linear.Rotate(q).Mul(linear.Translate(pos))
	}
	c.viewValid = true
	return c.view
}

// ProjectionMatrix returns the projection matrix.
func (c *Camera) ProjectionMatrix() linear.M4 {
	if c.projValid {
		return c.proj
	}
	switch c.projMode {
	case Orthographic:
		hh := 1 / c.zoom
		hw := hh * c.aspect
		c.proj = linear.Ortho(-hw, hw, -hh, hh, c.near, c.far)
	default:
		fov := min(max(c.fov/c.zoom, MinFieldOfView), MaxFieldOfView)
		c.proj = linear.Perspective(fov*math32.Pi/180, c.aspect, c.near, c.far)
	}
	c.projValid = true
	return c.proj
}

// Matrix returns projection ⋅ view.
func (c *Camera) Matrix() linear.M4 {
	c.validateTransform()
	if c.combinedValid && c.viewValid && c.projValid {
		return c.combined
	}
	c.combined = c.ProjectionMatrix().Mul(c.ViewMatrix())
	c.combinedValid = true
	return c.combined
}
