package game

import "math"

// MoveProjectiles integrates projectile positions and drops the ones whose
// lifespan ran out.
func MoveProjectiles(s *State, dt float64) {
	for _, p := range append([]*Projectile(nil), s.Projectiles...) {
		p.X += p.VX * dt
		p.Y += p.VY * dt
		p.Lifespan -= dt
		if p.Lifespan <= 0 {
			s.removeProjectile(p)
		}
	}
}

// NearestEnemy returns the enemy closest to (x, y) by squared distance. Ties
// go to the first enemy in slice order.
func NearestEnemy(enemies []*Enemy, x, y float64) *Enemy {
	var closest *Enemy
	minDist := math.MaxFloat64
	for _, e := range enemies {
		dx := e.X - x
		dy := e.Y - y
		d := dx*dx + dy*dy
		if d < minDist {
			minDist = d
			closest = e
		}
	}
	return closest
}

// ShootAtNearestEnemy fires one projectile from the player toward the
// nearest enemy. Nothing is fired when there are no enemies or the nearest
// one sits on the player (no direction).
func ShootAtNearestEnemy(s *State) *Projectile {
	target := NearestEnemy(s.Enemies, s.Player.X, s.Player.Y)
	if target == nil {
		return nil
	}

	dx := target.X - s.Player.X
	dy := target.Y - s.Player.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return nil
	}

	p := &Projectile{
		ID:       NewID(),
		X:        s.Player.X,
		Y:        s.Player.Y,
		VX:       dx / dist * ProjectileSpeed,
		VY:       dy / dist * ProjectileSpeed,
		Damage:   ProjectileDmg,
		Lifespan: ProjectileLife,
	}
	s.Projectiles = append(s.Projectiles, p)
	return p
}
