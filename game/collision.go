package game

// SegmentHitsCircle reports whether the segment (x1,y1)-(x2,y2) passes within
// radius of (cx,cy). A zero-length segment degrades to a point test.
func SegmentHitsCircle(x1, y1, x2, y2, cx, cy, radius float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	fx := cx - x1
	fy := cy - y1

	t := 0.0
	if lenSq := dx*dx + dy*dy; lenSq > 0 {
		t = (fx*dx + fy*dy) / lenSq
	}
	t = max(0, min(1, t))

	px := x1 + dx*t - cx
	py := y1 + dy*t - cy
	return px*px+py*py <= radius*radius
}

// ResolveCollisions tests the path each projectile covered during the last
// step of length dt against every enemy. The first enemy hit takes the
// damage and the projectile is consumed; enemies at zero health or below are
// removed. It returns the number of hits.
func ResolveCollisions(s *State, dt float64) int {
	hits := 0
	for _, p := range append([]*Projectile(nil), s.Projectiles...) {
		prevX := p.X - p.VX*dt
		prevY := p.Y - p.VY*dt

		for _, e := range append([]*Enemy(nil), s.Enemies...) {
			if !SegmentHitsCircle(prevX, prevY, p.X, p.Y, e.X, e.Y, EnemyRadius) {
				continue
			}
			e.Health -= p.Damage
			if e.Health <= 0 {
				s.removeEnemy(e)
			}
			s.removeProjectile(p)
			hits++
			break
		}
	}
	return hits
}
