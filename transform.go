package trafficview

import "github.com/go-gl/mathgl/mgl64"

// computeLocalMatrix composes Translate * Rotate * Scale for a node.
func computeLocalMatrix(n *Node) mgl64.Mat4 {
	t := mgl64.Translate3D(n.Position[0], n.Position[1], n.Position[2])
	r := n.Rotation.Mat4()
	s := mgl64.Scale3D(n.Scale[0], n.Scale[1], n.Scale[2])
	return t.Mul4(r).Mul4(s)
}

// updateWorldTransform recomputes a node's world matrix.
// parentRecomputed forces recomputation of this node even if it's not dirty.
func updateWorldTransform(n *Node, parent mgl64.Mat4, parentRecomputed bool) {
	recompute := n.transformDirty || parentRecomputed
	if recompute {
		n.worldMatrix = parent.Mul4(computeLocalMatrix(n))
		n.transformDirty = false
	}
	for _, child := range n.children {
		updateWorldTransform(child, n.worldMatrix, recompute)
	}
}

// --- Transform property setters ---

// SetPosition sets the node's local position and marks it dirty.
func (n *Node) SetPosition(p mgl64.Vec3) {
	n.Position = p
	n.transformDirty = true
}

// SetRotation sets the node's local rotation and marks it dirty.
func (n *Node) SetRotation(q mgl64.Quat) {
	n.Rotation = q
	n.transformDirty = true
}

// SetYaw rotates the node about the up axis by rad radians (counter-clockwise
// seen from above) and marks it dirty.
func (n *Node) SetYaw(rad float64) {
	n.Rotation = yawQuat(rad)
	n.transformDirty = true
}

// SetScale sets the node's scale and marks it dirty.
func (n *Node) SetScale(s mgl64.Vec3) {
	n.Scale = s
	n.transformDirty = true
}

// MarkDirty marks the node's transform as dirty, forcing recomputation
// on the next frame. Useful after bulk-setting fields directly.
func (n *Node) MarkDirty() {
	n.transformDirty = true
}

// WorldMatrix returns the cached world matrix from the last transform update.
func (n *Node) WorldMatrix() mgl64.Mat4 {
	return n.worldMatrix
}

// WorldPosition returns the node origin in world space.
func (n *Node) WorldPosition() mgl64.Vec3 {
	return n.worldMatrix.Col(3).Vec3()
}

// LocalToWorld converts a local-space point to world space.
func (n *Node) LocalToWorld(p mgl64.Vec3) mgl64.Vec3 {
	return transformPoint(n.worldMatrix, p)
}

// WorldToLocal converts a world-space point to this node's local space.
func (n *Node) WorldToLocal(p mgl64.Vec3) mgl64.Vec3 {
	return transformPoint(n.worldMatrix.Inv(), p)
}

// refreshTransform recomputes this node's world matrix and its subtree from
// the current parent chain. Used when a caller needs a fresh pose between
// frames (e.g. camera follow right after an upsert).
func (n *Node) refreshTransform() {
	parent := mgl64.Ident4()
	if n.Parent != nil {
		parent = n.Parent.worldMatrix
	}
	updateWorldTransform(n, parent, true)
}
