package trafficview

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestNewContainerDefaults(t *testing.T) {
	n := NewContainer("c")
	if n.Type != NodeTypeContainer || !n.Visible || n.Pickable {
		t.Errorf("container defaults: type=%v visible=%v pickable=%v", n.Type, n.Visible, n.Pickable)
	}
	if n.Scale != (mgl64.Vec3{1, 1, 1}) {
		t.Errorf("Scale = %v, want 1,1,1", n.Scale)
	}
	if n.Rotation != mgl64.QuatIdent() {
		t.Errorf("Rotation = %v, want identity", n.Rotation)
	}
}

func TestNewMeshNodeDefaults(t *testing.T) {
	m := boxMesh(mgl64.Vec3{1, 1, 1})
	n := NewMeshNode("m", m, NewMaterial(MaterialRoad))
	if n.Type != NodeTypeMesh || !n.Pickable {
		t.Errorf("mesh node: type=%v pickable=%v", n.Type, n.Pickable)
	}
	if n.Mesh != m || len(n.Materials) != 1 {
		t.Error("mesh and materials should be kept")
	}
}

func TestNewInstancedNodeNotPickable(t *testing.T) {
	n := NewInstancedNode("trees", treeMesh(), []mgl64.Mat4{mgl64.Ident4()})
	if n.Type != NodeTypeInstanced || n.Pickable {
		t.Errorf("instanced node: type=%v pickable=%v", n.Type, n.Pickable)
	}
}

func TestUniqueIDs(t *testing.T) {
	a := NewContainer("a")
	b := NewContainer("b")
	c := NewMeshNode("c", &Mesh{})
	if a.ID == b.ID || b.ID == c.ID || a.ID == c.ID {
		t.Errorf("IDs should be unique: %d, %d, %d", a.ID, b.ID, c.ID)
	}
}

// --- AddChild ---

func TestAddChildBasic(t *testing.T) {
	parent := NewContainer("parent")
	child := NewContainer("child")
	parent.AddChild(child)

	if child.Parent != parent {
		t.Error("child.Parent should be parent")
	}
	if parent.NumChildren() != 1 || parent.Children()[0] != child {
		t.Errorf("children = %v, want [child]", parent.Children())
	}
}

func TestAddChildReparent(t *testing.T) {
	p1 := NewContainer("p1")
	p2 := NewContainer("p2")
	child := NewContainer("child")

	p1.AddChild(child)
	p2.AddChild(child)
	if p1.NumChildren() != 0 {
		t.Error("p1 should have 0 children after reparent")
	}
	if p2.NumChildren() != 1 || child.Parent != p2 {
		t.Error("child should belong to p2")
	}
}

func TestAddChildCyclePanic(t *testing.T) {
	parent := NewContainer("parent")
	child := NewContainer("child")
	grandchild := NewContainer("grandchild")
	parent.AddChild(child)
	child.AddChild(grandchild)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for cycle, got none")
		}
	}()
	grandchild.AddChild(parent)
}

func TestAddChildSelfPanic(t *testing.T) {
	n := NewContainer("self")
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for self-add, got none")
		}
	}()
	n.AddChild(n)
}

func TestAddChildNilPanic(t *testing.T) {
	n := NewContainer("n")
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil child, got none")
		}
	}()
	n.AddChild(nil)
}

// --- Removal ---

func TestRemoveChild(t *testing.T) {
	parent := NewContainer("parent")
	a := NewContainer("a")
	b := NewContainer("b")
	parent.AddChild(a)
	parent.AddChild(b)

	parent.RemoveChild(a)
	if a.Parent != nil {
		t.Error("removed child should have no parent")
	}
	if parent.NumChildren() != 1 || parent.Children()[0] != b {
		t.Errorf("children = %v, want [b]", parent.Children())
	}
}

func TestRemoveChildWrongParentPanic(t *testing.T) {
	p1 := NewContainer("p1")
	p2 := NewContainer("p2")
	child := NewContainer("child")
	p1.AddChild(child)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for wrong parent, got none")
		}
	}()
	p2.RemoveChild(child)
}

func TestRemoveFromParentNoOp(t *testing.T) {
	n := NewContainer("orphan")
	n.RemoveFromParent()
	if n.Parent != nil {
		t.Error("orphan should stay orphaned")
	}
}

func TestRemoveChildren(t *testing.T) {
	parent := NewContainer("parent")
	kids := []*Node{NewContainer("a"), NewContainer("b"), NewContainer("c")}
	for _, k := range kids {
		parent.AddChild(k)
	}
	parent.RemoveChildren()
	if parent.NumChildren() != 0 {
		t.Errorf("NumChildren = %d, want 0", parent.NumChildren())
	}
	for _, k := range kids {
		if k.Parent != nil || k.IsDisposed() {
			t.Errorf("%s should be detached but alive", k.Name)
		}
	}
}

func TestWalkSkipsSubtree(t *testing.T) {
	root := NewContainer("root")
	a := NewContainer("a")
	b := NewContainer("b")
	a1 := NewContainer("a1")
	root.AddChild(a)
	root.AddChild(b)
	a.AddChild(a1)

	var seen []string
	root.Walk(func(n *Node) bool {
		seen = append(seen, n.Name)
		return n != a
	})
	want := []string{"root", "a", "b"}
	if len(seen) != len(want) {
		t.Fatalf("walk = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("walk = %v, want %v", seen, want)
		}
	}
}

// --- Dispose ---

func TestDispose(t *testing.T) {
	root := NewContainer("root")
	parent := NewContainer("parent")
	child := NewMeshNode("child", boxMesh(mgl64.Vec3{1, 1, 1}))
	root.AddChild(parent)
	parent.AddChild(child)

	parent.Dispose()

	if !parent.IsDisposed() || !child.IsDisposed() {
		t.Error("parent and child should be disposed")
	}
	if parent.ID != 0 || child.ID != 0 {
		t.Error("disposed nodes should have ID = 0")
	}
	if child.Mesh != nil {
		t.Error("disposed node should drop its mesh")
	}
	if root.NumChildren() != 0 {
		t.Error("root should have 0 children after dispose")
	}
}

func TestDisposeIdempotent(t *testing.T) {
	n := NewContainer("n")
	n.Dispose()
	n.Dispose()
	if !n.IsDisposed() {
		t.Error("should still be disposed")
	}
}

// --- Dirty propagation ---

func TestDirtyPropagationOnAddChild(t *testing.T) {
	parent := NewContainer("parent")
	child := NewContainer("child")
	grandchild := NewContainer("grandchild")
	child.AddChild(grandchild)

	child.transformDirty = false
	grandchild.transformDirty = false

	parent.AddChild(child)

	if !child.transformDirty || !grandchild.transformDirty {
		t.Error("subtree should be dirty after AddChild")
	}
}

func TestDirtyPropagationOnRemoveChild(t *testing.T) {
	parent := NewContainer("parent")
	child := NewContainer("child")
	parent.AddChild(child)

	child.transformDirty = false
	parent.RemoveChild(child)

	if !child.transformDirty {
		t.Error("child should be dirty after RemoveChild")
	}
}
