package transform

import (
	"errors"
	"runtime"
	"testing"

	"github.com/chewxy/math32"

	"github.com/gogpu/rhi/linear"
)

const eps = 1e-5

func TestNewIsDirty(t *testing.T) {
	tr := New()
	if !tr.IsDirty() {
		t.Fatal("New: IsDirty = false, want true")
	}
	if m := tr.Matrix(); m != linear.I() {
		t.Errorf("Matrix = %v, want identity", m)
	}
	if tr.IsDirty() {
		t.Error("IsDirty after Matrix = true, want false")
	}
}

func TestSetPositionMarksDirty(t *testing.T) {
	tr := New()
	tr.Matrix()
	tr.ConsumeChanged()

	tr.SetPosition(linear.V3{1, 2, 3})
	if f := tr.Flags(); f&PositionChanged == 0 || f&Changed == 0 {
		t.Errorf("Flags = %04b, want PositionChanged|Changed", f)
	}
	if p := tr.WorldPosition(); p != (linear.V3{1, 2, 3}) {
		t.Errorf("WorldPosition = %v, want [1 2 3]", p)
	}

	tr.Matrix()
	tr.ConsumeChanged()
	tr.SetPosition(linear.V3{1, 2, 3})
	if tr.IsDirty() || tr.ConsumeChanged() {
		t.Error("setting the same position marked the transform")
	}
}

func TestParentPropagation(t *testing.T) {
	parent := New()
	child := New()
	if err := child.SetParent(parent); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	child.SetPosition(linear.V3{0, 1, 0})
	child.Matrix()
	parent.Matrix()

	parent.SetPosition(linear.V3{10, 0, 0})
	if child.Flags()&PositionChanged == 0 {
		t.Errorf("child Flags = %04b, want PositionChanged", child.Flags())
	}
	if p := child.WorldPosition(); p != (linear.V3{10, 1, 0}) {
		t.Errorf("child WorldPosition = %v, want [10 1 0]", p)
	}

	parent.SetOrientation(linear.Rotation(math32.Pi/2, linear.V3{0, 0, 1}))
	want := linear.V3{9, 0, 0}
	if p := child.WorldPosition(); p.Sub(want).Len() > eps {
		t.Errorf("child WorldPosition after rotation = %v, want %v", p, want)
	}
}

func TestGrandchildPropagation(t *testing.T) {
	a, b, c := New(), New(), New()
	_ = b.SetParent(a)
	_ = c.SetParent(b)
	c.Matrix()

	a.SetPosition(linear.V3{0, 0, 5})
	if !c.IsDirty() {
		t.Fatal("grandchild not marked dirty")
	}
	if p := c.WorldPosition(); p != (linear.V3{0, 0, 5}) {
		t.Errorf("grandchild WorldPosition = %v, want [0 0 5]", p)
	}
}

func TestSetParentCycle(t *testing.T) {
	a, b, c := New(), New(), New()
	_ = b.SetParent(a)
	_ = c.SetParent(b)

	tests := []struct {
		name   string
		child  *Transform
		parent *Transform
	}{
		{"self", a, a},
		{"child", a, b},
		{"grandchild", a, c},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.child.SetParent(tt.parent); !errors.Is(err, ErrCycle) {
				t.Errorf("SetParent = %v, want ErrCycle", err)
			}
		})
	}
	if a.Parent() != nil {
		t.Error("failed SetParent changed the parent")
	}
}

func TestReparent(t *testing.T) {
	a, b, c := New(), New(), New()
	_ = c.SetParent(a)
	_ = c.SetParent(b)
	if n := len(a.Children()); n != 0 {
		t.Errorf("old parent Children = %d, want 0", n)
	}
	if n := len(b.Children()); n != 1 {
		t.Errorf("new parent Children = %d, want 1", n)
	}
	_ = c.SetParent(nil)
	if c.Parent() != nil || len(b.Children()) != 0 {
		t.Error("SetParent(nil) did not detach")
	}
}

func TestCollectedParent(t *testing.T) {
	child := New()
	func() {
		p := New()
		p.SetPosition(linear.V3{3, 0, 0})
		_ = child.SetParent(p)
		if w := child.WorldPosition(); w != (linear.V3{3, 0, 0}) {
			t.Errorf("WorldPosition = %v, want [3 0 0]", w)
		}
	}()
	runtime.GC()
	runtime.GC()
	if child.Parent() != nil {
		t.Skip("parent not collected yet")
	}
	if w := child.WorldPosition(); w != (linear.V3{}) {
		t.Errorf("WorldPosition after parent collected = %v, want origin", w)
	}
}

func TestCameraDefaults(t *testing.T) {
	c := NewCamera()
	if c.FieldOfView() != 60 || c.Zoom() != 1 {
		t.Errorf("fov, zoom = %v, %v, want 60, 1", c.FieldOfView(), c.Zoom())
	}
	if c.ViewMode() != FirstPerson || c.ProjectionMode() != Perspective {
		t.Errorf("modes = %v, %v", c.ViewMode(), c.ProjectionMode())
	}
	if v := c.ViewMatrix(); v != linear.I() {
		t.Errorf("ViewMatrix at origin = %v, want identity", v)
	}
}

func TestCameraClipSwap(t *testing.T) {
	c := NewCamera()
	c.SetNearClippingPlane(0.01)
	c.SetFarClippingPlane(1)
	c.ProjectionMatrix()

	c.SetFarClippingPlane(0.001)
	if c.NearClippingPlane() != 0.001 || c.FarClippingPlane() != 0.01 {
		t.Errorf("near, far = %v, %v, want 0.001, 0.01",
			c.NearClippingPlane(), c.FarClippingPlane())
	}
	if c.projValid {
		t.Error("projection still valid after clip change")
	}
}

func TestCameraFieldOfViewClamp(t *testing.T) {
	tests := []struct {
		in, want float32
	}{
		{45, 45},
		{0, MinFieldOfView},
		{-10, MinFieldOfView},
		{180, MaxFieldOfView},
		{1000, MaxFieldOfView},
	}
	for _, tt := range tests {
		c := NewCamera()
		c.SetFieldOfView(tt.in)
		if got := c.FieldOfView(); got != tt.want {
			t.Errorf("SetFieldOfView(%v): FieldOfView = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCameraInvalidation(t *testing.T) {
	c := NewCamera()
	c.Matrix()
	if !c.viewValid || !c.projValid || !c.combinedValid {
		t.Fatal("Matrix left a cache invalid")
	}

	c.SetZoom(2)
	if !c.viewValid || c.projValid || c.combinedValid {
		t.Errorf("SetZoom: view=%v proj=%v combined=%v, want true false false",
			c.viewValid, c.projValid, c.combinedValid)
	}
	c.Matrix()

	c.Transform().SetPosition(linear.V3{0, 0, 5})
	c.Matrix()
	if v := c.ViewMatrix(); v[3][2] != -5 {
		t.Errorf("ViewMatrix translation z = %v, want -5", v[3][2])
	}

	c.SetViewport(200, 100)
	if c.Aspect() != 2 || c.projValid {
		t.Errorf("SetViewport: aspect = %v, projValid = %v", c.Aspect(), c.projValid)
	}
	p := c.ProjectionMatrix()
	if math32.Abs(p[1][1]/p[0][0]-2) > eps {
		t.Errorf("projection x/y scale ratio = %v, want 2", p[1][1]/p[0][0])
	}
}

func TestCameraZoomNarrowsPerspective(t *testing.T) {
	c := NewCamera()
	a := c.ProjectionMatrix()[1][1]
	c.SetZoom(2)
	b := c.ProjectionMatrix()[1][1]
	if b <= a {
		t.Errorf("y scale with zoom 2 = %v, want > %v", b, a)
	}
}

func TestCameraOrthographic(t *testing.T) {
	c := NewCamera()
	c.SetProjectionMode(Orthographic)
	c.SetZoom(2)
	p := c.ProjectionMatrix()
	if p[1][1] != 2 {
		t.Errorf("ortho y scale = %v, want 2", p[1][1])
	}
}

func TestCameraOrbital(t *testing.T) {
	c := NewCamera()
	c.SetViewMode(Orbital)
	c.Transform().SetPosition(linear.V3{0, 0, -10})

	// An unrotated orbital camera sees its pivot at distance 10.
	v := c.ViewMatrix()
	if v[3][2] != -10 {
		t.Errorf("orbital view translation z = %v, want -10", v[3][2])
	}

	c.Orbit(math32.Pi/2, 0)
	v = c.ViewMatrix()
	eye := v.MulV4(linear.V4{0, 0, 0, 1})
	if d := math32.Sqrt(eye[0]*eye[0] + eye[1]*eye[1] + eye[2]*eye[2]); math32.Abs(d-10) > 1e-4 {
		t.Errorf("pivot distance after orbit = %v, want 10", d)
	}
}

func TestCameraOrbitPitchClamp(t *testing.T) {
	c := NewCamera()
	c.SetViewMode(Orbital)
	c.Orbit(0, math32.Pi)
	if c.pitch != maxPitch {
		t.Errorf("pitch = %v, want %v", c.pitch, maxPitch)
	}

	free := NewCamera()
	free.SetViewMode(OrbitalFree)
	free.Orbit(0, math32.Pi)
	q := free.Transform().Orientation()
	if math32.Abs(q.R) > eps {
		t.Errorf("OrbitalFree half-turn R = %v, want 0", q.R)
	}
}

func TestCameraFollowsParent(t *testing.T) {
	rig := New()
	cam := NewCamera()
	if err := cam.Transform().SetParent(rig); err != nil {
		t.Fatal(err)
	}
	cam.Transform().SetPosition(linear.V3{0, 0, 5})
	before := cam.ViewMatrix()

	turn := linear.Rotation(math32.Pi/2, linear.V3{0, 1, 0})
	rig.SetPosition(linear.V3{10, 0, 0})
	rig.SetOrientation(turn)
	got := cam.ViewMatrix()
	if got.Approx(before, eps) {
		t.Fatal("view did not change when the parent moved")
	}

	// Same world pose without a parent.
	ref := NewCamera()
	ref.Transform().SetPosition(cam.Transform().WorldPosition())
	ref.Transform().SetOrientation(turn)
	if want := ref.ViewMatrix(); !got.Approx(want, eps) {
		t.Errorf("parented view = %v, want %v", got, want)
	}
	p := cam.Transform().WorldPosition()
	if math32.Abs(p[0]-15) > eps || math32.Abs(p[1]) > eps || math32.Abs(p[2]) > eps {
		t.Errorf("WorldPosition = %v, want (15, 0, 0)", p)
	}
	runtime.KeepAlive(rig)
}

func TestModeString(t *testing.T) {
	if s := OrbitalFree.String(); s != "OrbitalFree" {
		t.Errorf("String = %q", s)
	}
	if s := Orthographic.String(); s != "Orthographic" {
		t.Errorf("String = %q", s)
	}
	if s := ViewMode(9).String(); s != "ViewMode(9)" {
		t.Errorf("String = %q", s)
	}
}
