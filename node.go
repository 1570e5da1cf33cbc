package trafficview

import "github.com/go-gl/mathgl/mgl64"

// nodeIDCounter is a plain counter; the scene is single-threaded.
var nodeIDCounter uint32

func nextNodeID() uint32 {
	nodeIDCounter++
	return nodeIDCounter
}

// Node is the scene graph element. A single flat struct is used for all node
// types to avoid interface dispatch on the render path.
//
// Owner is the back-reference to the domain entity this node draws. It is set
// once at construction; picking reads it directly instead of walking parents.
type Node struct {
	// Identity
	ID   uint32
	Name string
	Type NodeType

	// Hierarchy
	Parent   *Node
	children []*Node

	// Transform (local)
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3

	worldMatrix    mgl64.Mat4
	transformDirty bool

	// Visibility & interaction
	Visible  bool
	Pickable bool

	// Owner is the domain entity drawn by this node; zero for decoration.
	Owner DomainRef

	// Mesh fields (NodeTypeMesh, NodeTypeInstanced)
	Mesh      *Mesh
	Materials []*Material

	// Instances holds one local matrix per copy (NodeTypeInstanced).
	Instances []mgl64.Mat4

	UserData any

	disposed bool
}

func nodeDefaults(n *Node) {
	n.ID = nextNodeID()
	n.Rotation = mgl64.QuatIdent()
	n.Scale = mgl64.Vec3{1, 1, 1}
	n.worldMatrix = mgl64.Ident4()
	n.Visible = true
	n.transformDirty = true
}

// NewContainer creates a group node with no visual representation.
func NewContainer(name string) *Node {
	n := &Node{Name: name, Type: NodeTypeContainer}
	nodeDefaults(n)
	return n
}

// NewMeshNode creates a node drawing mesh. Group g of the mesh uses
// materials[mesh.Groups[g].Material].
func NewMeshNode(name string, mesh *Mesh, materials ...*Material) *Node {
	n := &Node{Name: name, Type: NodeTypeMesh, Mesh: mesh, Materials: materials, Pickable: true}
	nodeDefaults(n)
	return n
}

// NewInstancedNode creates a node drawing mesh once per instance matrix.
// Instanced nodes are decoration: they are never pickable.
func NewInstancedNode(name string, mesh *Mesh, instances []mgl64.Mat4, materials ...*Material) *Node {
	n := &Node{Name: name, Type: NodeTypeInstanced, Mesh: mesh, Materials: materials, Instances: instances}
	nodeDefaults(n)
	return n
}

// --- Tree manipulation ---

// AddChild appends child to this node's children.
// If child already has a parent, it is removed from that parent first.
// Panics if child is nil or child is an ancestor of this node (cycle).
func (n *Node) AddChild(child *Node) {
	if child == nil {
		panic("trafficview: cannot add nil child")
	}
	if globalDebug {
		debugCheckDisposed(n, "AddChild (parent)")
		debugCheckDisposed(child, "AddChild (child)")
	}
	if isAncestor(child, n) {
		panic("trafficview: adding child would create a cycle")
	}
	if child.Parent != nil {
		child.Parent.removeChildByPtr(child)
	}
	child.Parent = n
	n.children = append(n.children, child)
	markSubtreeDirty(child)
	if globalDebug {
		debugCheckTreeDepth(child)
		debugCheckChildCount(n)
	}
}

// RemoveChild detaches child from this node.
// Panics if child.Parent != n.
func (n *Node) RemoveChild(child *Node) {
	if child.Parent != n {
		panic("trafficview: child's parent is not this node")
	}
	n.removeChildByPtr(child)
	child.Parent = nil
	markSubtreeDirty(child)
}

// RemoveFromParent detaches this node from its parent.
// No-op if this node has no parent.
func (n *Node) RemoveFromParent() {
	if n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
}

// RemoveChildren detaches all children from this node.
// Children are NOT disposed.
func (n *Node) RemoveChildren() {
	for _, child := range n.children {
		child.Parent = nil
		markSubtreeDirty(child)
	}
	n.children = n.children[:0]
}

// Children returns the child list. The returned slice MUST NOT be mutated by the caller.
func (n *Node) Children() []*Node {
	return n.children
}

// NumChildren returns the number of children.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// Walk calls fn for n and every descendant in depth-first order. Returning
// false from fn skips that node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.children {
		child.Walk(fn)
	}
}

// --- Disposal ---

// Dispose removes this node from its parent, marks it as disposed,
// and recursively disposes all descendants. Shared meshes are not freed.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	n.RemoveFromParent()
	n.dispose()
}

func (n *Node) dispose() {
	n.disposed = true
	n.ID = 0
	for _, child := range n.children {
		child.Parent = nil
		child.dispose()
	}
	n.children = nil
	n.Parent = nil
	n.Mesh = nil
	n.Materials = nil
	n.Instances = nil
	n.UserData = nil
}

// IsDisposed returns true if this node has been disposed.
func (n *Node) IsDisposed() bool {
	return n.disposed
}

// --- Helpers ---

// isAncestor reports whether candidate is an ancestor of node.
func isAncestor(candidate, node *Node) bool {
	for p := node; p != nil; p = p.Parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// removeChildByPtr removes child from n.children without clearing child.Parent.
// Uses copy+nil to avoid retaining a dangling pointer in the backing array.
func (n *Node) removeChildByPtr(child *Node) {
	for i, c := range n.children {
		if c == child {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = nil
			n.children = n.children[:len(n.children)-1]
			return
		}
	}
}

// markSubtreeDirty sets transformDirty on node and all its descendants.
func markSubtreeDirty(node *Node) {
	node.transformDirty = true
	for _, child := range node.children {
		markSubtreeDirty(child)
	}
}
