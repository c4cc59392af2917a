package game

import (
	"math"
	"math/rand/v2"
)

// MoveEnemies steps every enemy straight at the player. An enemy already
// within EnemyEpsilon of the player holds still; the rest keep moving.
func MoveEnemies(enemies []*Enemy, p *Player, dt float64) {
	for _, e := range append([]*Enemy(nil), enemies...) {
		dx := p.X - e.X
		dy := p.Y - e.Y
		dist := math.Hypot(dx, dy)
		if dist < EnemyEpsilon {
			continue
		}
		e.X += dx / dist * EnemySpeed * dt
		e.Y += dy / dist * EnemySpeed * dt
	}
}

// SpawnEnemy adds one full-health enemy at an integer position inside the
// spawn square.
func SpawnEnemy(s *State, rng *rand.Rand) *Enemy {
	e := &Enemy{
		ID:        NewID(),
		X:         float64(rng.IntN(EnemySpawnMax)),
		Y:         float64(rng.IntN(EnemySpawnMax)),
		Health:    EnemyHealth,
		MaxHealth: EnemyHealth,
	}
	s.Enemies = append(s.Enemies, e)
	return e
}
