package trafficview

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/hajimehoshi/ebiten/v2"
)

// Render layers. Everything on a higher layer draws over lower layers.
const (
	layerBase    uint8 = iota // static scene, signals and agents
	layerOverlay              // highlight clones
)

// triCommand is one screen-space triangle emitted during traversal.
type triCommand struct {
	x, y  [3]float32
	color color32
	depth float32
	layer uint8
	order int // emission order, for a stable sort
}

// color32 is a compact RGBA color using float32, for render commands only.
type color32 struct {
	R, G, B, A float32
}

// lightDir is the direction towards the sun used for flat shading.
var lightDir = mgl64.Vec3{0.35, 0.85, 0.4}.Normalize()

const (
	ambient = 0.45
	diffuse = 0.55
)

// shade returns the lit color of a face with world-space normal n.
// Faces are two-sided.
func shade(m *Material, n mgl64.Vec3) color32 {
	c := m.Color
	if !m.Unlit {
		f := ambient + diffuse*math.Abs(n.Dot(lightDir))
		c = c.Scale(f)
	}
	return color32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
}

// collect walks the visible tree under n and appends one command per
// on-screen triangle. World transforms must already be up to date.
func (s *Scene) collect(n *Node, vp mgl64.Mat4, layer uint8) {
	if !n.Visible {
		return
	}
	switch n.Type {
	case NodeTypeMesh:
		if n.Mesh != nil {
			s.emitMesh(n, n.worldMatrix, vp, layer)
		}
	case NodeTypeInstanced:
		if n.Mesh != nil {
			for _, inst := range n.Instances {
				s.emitMesh(n, n.worldMatrix.Mul4(inst), vp, layer)
			}
		}
	}
	for _, child := range n.children {
		s.collect(child, vp, layer)
	}
}

func (s *Scene) emitMesh(n *Node, world, vp mgl64.Mat4, layer uint8) {
	m := n.Mesh
	mvp := vp.Mul4(world)
	if boxOutsideClip(mvp, m.Bounds()) {
		return
	}
	vw := s.camera.Viewport
	for _, g := range m.Groups {
		if g.Hidden || g.Material < 0 || g.Material >= len(n.Materials) {
			continue
		}
		mat := n.Materials[g.Material]
		if mat == nil {
			continue
		}
		for t := g.Start / 3; t < (g.Start+g.Count)/3; t++ {
			a, b, c := m.Triangle(t)
			var cmd triCommand
			var depth float64
			visible := true
			for i, p := range [3]mgl64.Vec3{a, b, c} {
				clip := mvp.Mul4x1(p.Vec4(1))
				if clip[3] <= s.camera.Near*0.5 {
					visible = false
					break
				}
				nx, ny := clip[0]/clip[3], clip[1]/clip[3]
				cmd.x[i] = float32(vw.X + (nx+1)/2*vw.Width)
				cmd.y[i] = float32(vw.Y + (1-ny)/2*vw.Height)
				depth += clip[3]
			}
			if !visible {
				continue
			}
			wa, wb, wc := transformPoint(world, a), transformPoint(world, b), transformPoint(world, c)
			normal := wb.Sub(wa).Cross(wc.Sub(wa))
			if l := normal.Len(); l > 0 {
				normal = normal.Mul(1 / l)
			}
			cmd.color = shade(mat, normal)
			cmd.depth = float32(depth / 3)
			cmd.layer = layer
			cmd.order = len(s.tris)
			s.tris = append(s.tris, cmd)
		}
	}
}

// boxOutsideClip reports whether every corner of a local box lies outside
// the same clip plane.
func boxOutsideClip(mvp mgl64.Mat4, b Box) bool {
	if b.IsEmpty() {
		return true
	}
	var out [6]int
	for i := 0; i < 8; i++ {
		p := mgl64.Vec4{b.Min[0], b.Min[1], b.Min[2], 1}
		if i&1 != 0 {
			p[0] = b.Max[0]
		}
		if i&2 != 0 {
			p[1] = b.Max[1]
		}
		if i&4 != 0 {
			p[2] = b.Max[2]
		}
		c := mvp.Mul4x1(p)
		if c[0] > c[3] {
			out[0]++
		}
		if c[0] < -c[3] {
			out[1]++
		}
		if c[1] > c[3] {
			out[2]++
		}
		if c[1] < -c[3] {
			out[3]++
		}
		if c[2] > c[3] {
			out[4]++
		}
		if c[3] <= 0 {
			out[5]++
		}
	}
	for _, n := range out {
		if n == 8 {
			return true
		}
	}
	return false
}

// --- Merge sort ---

// triLessOrEqual orders by layer, then far to near (painter's algorithm).
// Using <= for order keeps the sort stable.
func triLessOrEqual(a, b *triCommand) bool {
	if a.layer != b.layer {
		return a.layer < b.layer
	}
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	return a.order <= b.order
}

// mergeSort sorts s.tris in place using s.sortBuf as scratch space.
// Bottom-up merge sort: no allocations once the buffer reaches its
// high-water mark.
func (s *Scene) mergeSort() {
	n := len(s.tris)
	if n <= 1 {
		return
	}
	if cap(s.sortBuf) < n {
		s.sortBuf = make([]triCommand, n)
	}
	s.sortBuf = s.sortBuf[:n]

	a := s.tris
	b := s.sortBuf
	swapped := false
	for width := 1; width < n; width *= 2 {
		for i := 0; i < n; i += 2 * width {
			lo := i
			mid := min(lo+width, n)
			hi := min(lo+2*width, n)
			mergeRun(a, b, lo, mid, hi)
		}
		a, b = b, a
		swapped = !swapped
	}
	if swapped {
		copy(s.tris, s.sortBuf)
	}
}

// mergeRun merges two sorted runs [lo, mid) and [mid, hi) from src into dst.
func mergeRun(src, dst []triCommand, lo, mid, hi int) {
	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if triLessOrEqual(&src[i], &src[j]) {
			dst[k] = src[i]
			i++
		} else {
			dst[k] = src[j]
			j++
		}
		k++
	}
	for ; i < mid; i, k = i+1, k+1 {
		dst[k] = src[i]
	}
	for ; j < hi; j, k = j+1, k+1 {
		dst[k] = src[j]
	}
}

// --- Submission ---

// maxBatchTris keeps each DrawTriangles call within 16-bit indices.
const maxBatchTris = 65535 / 3

var whitePixel *ebiten.Image

// ensureWhitePixel lazily creates the 3x3 white source image; sampling its
// center pixel gives flat color.
func ensureWhitePixel() *ebiten.Image {
	if whitePixel == nil {
		whitePixel = ebiten.NewImage(3, 3)
		whitePixel.Fill(color.White)
	}
	return whitePixel
}

// submit draws the sorted triangles in batches and returns the number of
// draw calls issued.
func (s *Scene) submit(screen *ebiten.Image) int {
	img := ensureWhitePixel()
	calls := 0
	var opts ebiten.DrawTrianglesOptions
	for start := 0; start < len(s.tris); start += maxBatchTris {
		end := min(start+maxBatchTris, len(s.tris))
		s.verts = s.verts[:0]
		s.inds = s.inds[:0]
		for i := start; i < end; i++ {
			t := &s.tris[i]
			base := uint16(len(s.verts))
			for k := 0; k < 3; k++ {
				s.verts = append(s.verts, ebiten.Vertex{
					DstX: t.x[k], DstY: t.y[k],
					SrcX: 1.5, SrcY: 1.5,
					ColorR: t.color.R, ColorG: t.color.G, ColorB: t.color.B, ColorA: t.color.A,
				})
			}
			s.inds = append(s.inds, base, base+1, base+2)
		}
		screen.DrawTriangles(s.verts, s.inds, img, &opts)
		calls++
	}
	return calls
}
