package spatial

import (
	"math"

	"github.com/paulmach/orb"
)

// Region is a query area. Intersects may be conservative for node bounds
// but decides membership for entry boxes.
type Region interface {
	Intersects(b orb.Bound) bool
}

// Box is an axis-aligned query region
type Box orb.Bound

func (r Box) Intersects(b orb.Bound) bool {
	return orb.Bound(r).Intersects(b)
}

// Plane is the half-plane Normal·p + D >= 0
type Plane struct {
	Normal orb.Point
	D      float64
}

// Frustum is a convex region bounded by half-planes, the 2D footprint of a
// camera view
type Frustum struct {
	Planes []Plane
}

// Intersects reports false only when the box lies fully outside one plane
func (f Frustum) Intersects(b orb.Bound) bool {
	for _, p := range f.Planes {
		// corner furthest along the normal
		x := b.Min[0]
		if p.Normal[0] >= 0 {
			x = b.Max[0]
		}
		y := b.Min[1]
		if p.Normal[1] >= 0 {
			y = b.Max[1]
		}
		if p.Normal[0]*x+p.Normal[1]*y+p.D < 0 {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether p is inside every plane
func (f Frustum) ContainsPoint(pt orb.Point) bool {
	for _, p := range f.Planes {
		if p.Normal[0]*pt[0]+p.Normal[1]*pt[1]+p.D < 0 {
			return false
		}
	}
	return true
}

// planeThrough builds the half-plane through pt whose inside is along normal
func planeThrough(pt, normal orb.Point) Plane {
	return Plane{Normal: normal, D: -(normal[0]*pt[0] + normal[1]*pt[1])}
}

// NewViewFrustum builds the trapezoid seen from eye looking along heading
// (radians, 0 = +X, counter-clockwise) with a horizontal field of view
// between near and far
func NewViewFrustum(eye orb.Point, heading, fov, near, far float64) Frustum {
	dir := orb.Point{math.Cos(heading), math.Sin(heading)}
	half := fov / 2

	// left and right edges, normals pointing inward
	left := orb.Point{math.Cos(heading + half), math.Sin(heading + half)}
	right := orb.Point{math.Cos(heading - half), math.Sin(heading - half)}
	leftNormal := orb.Point{left[1], -left[0]}
	rightNormal := orb.Point{-right[1], right[0]}

	nearPt := orb.Point{eye[0] + dir[0]*near, eye[1] + dir[1]*near}
	farPt := orb.Point{eye[0] + dir[0]*far, eye[1] + dir[1]*far}

	return Frustum{Planes: []Plane{
		planeThrough(nearPt, dir),
		planeThrough(farPt, orb.Point{-dir[0], -dir[1]}),
		planeThrough(eye, leftNormal),
		planeThrough(eye, rightNormal),
	}}
}
