package game

import "math/rand/v2"

// World advances one State with the spawn and auto-fire timers that belong
// to it.
type World struct {
	State *State

	spawnTimer float64
	shootTimer float64
	rng        *rand.Rand
}

func NewWorld(rng *rand.Rand) *World {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &World{State: NewState(), rng: rng}
}

// Step advances the world by dt: movement, timers, then collisions.
func (w *World) Step(dt float64) {
	s := w.State

	MovePlayer(s.Player, dt)
	MoveEnemies(s.Enemies, s.Player, dt)
	MoveProjectiles(s, dt)

	w.spawnTimer += dt
	w.shootTimer += dt

	if w.spawnTimer >= EnemySpawnInterval {
		SpawnEnemy(s, w.rng)
		w.spawnTimer = 0
	}
	if w.shootTimer >= ShootInterval {
		ShootAtNearestEnemy(s)
		w.shootTimer = 0
	}

	ResolveCollisions(s, dt)
}
