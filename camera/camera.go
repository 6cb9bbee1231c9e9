// Package camera provides a 2D camera for top-down viewport control.
package camera

import "github.com/pthm-cable/navkit/navmesh"

// Camera maps the world XZ plane onto the screen. Supports pan and
// zoom, clamped so the view never strays far from the world bounds.
type Camera struct {
	// Position is the camera center in world coordinates
	X, Z float32

	// Zoom in pixels per world unit
	Zoom float32

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// World bounds in the XZ plane
	MinX, MinZ, MaxX, MaxZ float32

	// Zoom constraints
	MinZoom, MaxZoom float32
}

// New creates a camera centered on bounds at the given zoom.
func New(viewportW, viewportH, zoom float32, bounds navmesh.AABB) *Camera {
	return &Camera{
		X:         (bounds.Min.X + bounds.Max.X) / 2,
		Z:         (bounds.Min.Z + bounds.Max.Z) / 2,
		Zoom:      zoom,
		ViewportW: viewportW,
		ViewportH: viewportH,
		MinX:      bounds.Min.X,
		MinZ:      bounds.Min.Z,
		MaxX:      bounds.Max.X,
		MaxZ:      bounds.Max.Z,
		MinZoom:   zoom / 8,
		MaxZoom:   zoom * 8,
	}
}

// WorldToScreen converts a world position to screen coordinates.
// World Z maps to screen Y.
func (c *Camera) WorldToScreen(p navmesh.Vec3) (sx, sy float32) {
	sx = c.ViewportW/2 + (p.X-c.X)*c.Zoom
	sy = c.ViewportH/2 + (p.Z-c.Z)*c.Zoom
	return sx, sy
}

// ScreenToWorld converts screen coordinates to a world position on
// the XZ plane.
func (c *Camera) ScreenToWorld(sx, sy float32) navmesh.Vec3 {
	return navmesh.Vec3{
		X: c.X + (sx-c.ViewportW/2)/c.Zoom,
		Z: c.Z + (sy-c.ViewportH/2)/c.Zoom,
	}
}

// Pan moves the camera by a screen-space delta.
func (c *Camera) Pan(dx, dy float32) {
	c.X -= dx / c.Zoom
	c.Z -= dy / c.Zoom
	c.clamp()
}

// ZoomAt scales the zoom by factor, keeping the world point under the
// given screen position fixed.
func (c *Camera) ZoomAt(sx, sy, factor float32) {
	anchor := c.ScreenToWorld(sx, sy)

	c.Zoom *= factor
	if c.Zoom < c.MinZoom {
		c.Zoom = c.MinZoom
	}
	if c.Zoom > c.MaxZoom {
		c.Zoom = c.MaxZoom
	}

	// Shift so the anchor stays under the cursor.
	after := c.ScreenToWorld(sx, sy)
	c.X += anchor.X - after.X
	c.Z += anchor.Z - after.Z
	c.clamp()
}

// IsVisible returns true if a circle at p with the given radius could
// be visible on screen (conservative check for culling).
func (c *Camera) IsVisible(p navmesh.Vec3, radius float32) bool {
	halfW := c.ViewportW/(2*c.Zoom) + radius
	halfH := c.ViewportH/(2*c.Zoom) + radius
	return absf(p.X-c.X) <= halfW && absf(p.Z-c.Z) <= halfH
}

// clamp keeps the camera center inside the world bounds.
func (c *Camera) clamp() {
	if c.X < c.MinX {
		c.X = c.MinX
	}
	if c.X > c.MaxX {
		c.X = c.MaxX
	}
	if c.Z < c.MinZ {
		c.Z = c.MinZ
	}
	if c.Z > c.MaxZ {
		c.Z = c.MaxZ
	}
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
