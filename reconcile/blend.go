package reconcile

import (
	"time"

	"arena/protocol"
)

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(t float64) float64 {
	return max(0, min(1, t))
}

// extrapolate projects entities with a known velocity forward by d.
func extrapolate(s protocol.ArenaState, d time.Duration) protocol.ArenaState {
	out := s.Clone()
	sec := d.Seconds()
	for i := range out.Projectiles {
		p := &out.Projectiles[i]
		p.X += p.VX * sec
		p.Y += p.VY * sec
	}
	return out
}

// interpolate blends two snapshots by t. Entities are matched by id: those
// in both are blended, those only in newer are taken as-is, those only in
// older are dropped.
func interpolate(older, newer protocol.ArenaState, t float64) protocol.ArenaState {
	out := protocol.ArenaState{
		Player:          newer.Player,
		Enemies:         make([]protocol.EnemyState, 0, len(newer.Enemies)),
		Projectiles:     make([]protocol.ProjectileState, 0, len(newer.Projectiles)),
		ServerTimestamp: newer.ServerTimestamp,
	}
	out.Player.X = lerp(older.Player.X, newer.Player.X, t)
	out.Player.Y = lerp(older.Player.Y, newer.Player.Y, t)

	oldEnemies := make(map[string]protocol.EnemyState, len(older.Enemies))
	for _, e := range older.Enemies {
		oldEnemies[e.ID] = e
	}
	for _, e := range newer.Enemies {
		if prev, ok := oldEnemies[e.ID]; ok {
			e.X = lerp(prev.X, e.X, t)
			e.Y = lerp(prev.Y, e.Y, t)
		}
		out.Enemies = append(out.Enemies, e)
	}

	oldProjectiles := make(map[string]protocol.ProjectileState, len(older.Projectiles))
	for _, p := range older.Projectiles {
		oldProjectiles[p.ID] = p
	}
	for _, p := range newer.Projectiles {
		if prev, ok := oldProjectiles[p.ID]; ok {
			p.X = lerp(prev.X, p.X, t)
			p.Y = lerp(prev.Y, p.Y, t)
		}
		out.Projectiles = append(out.Projectiles, p)
	}
	return out
}
