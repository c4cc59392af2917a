package game

import "github.com/google/uuid"

// Internal truth authoritative arena state. A State is owned by exactly one
// session and is not safe for concurrent use on its own.

type State struct {
	Player      *Player
	Enemies     []*Enemy
	Projectiles []*Projectile
}

type Player struct {
	ID                string
	X, Y              float64
	Health, MaxHealth int
	TargetX, TargetY  float64
}

type Enemy struct {
	ID                string
	X, Y              float64
	Health, MaxHealth int
}

type Projectile struct {
	ID       string
	X, Y     float64
	VX, VY   float64
	Damage   int
	Lifespan float64
}

// NewID returns a fresh entity id. Ids are never reused within a process.
var NewID = uuid.NewString

// NewState returns a fresh arena: the player at the spawn point with its
// target on itself, no enemies and no projectiles.
func NewState() *State {
	return &State{
		Player: &Player{
			ID:        NewID(),
			X:         PlayerSpawnX,
			Y:         PlayerSpawnY,
			Health:    PlayerHealth,
			MaxHealth: PlayerHealth,
			TargetX:   PlayerSpawnX,
			TargetY:   PlayerSpawnY,
		},
		Enemies:     []*Enemy{},
		Projectiles: []*Projectile{},
	}
}

// Clone deep-copies s.
func (s *State) Clone() *State {
	out := &State{
		Enemies:     make([]*Enemy, 0, len(s.Enemies)),
		Projectiles: make([]*Projectile, 0, len(s.Projectiles)),
	}
	if s.Player != nil {
		p := *s.Player
		out.Player = &p
	}
	for _, e := range s.Enemies {
		c := *e
		out.Enemies = append(out.Enemies, &c)
	}
	for _, p := range s.Projectiles {
		c := *p
		out.Projectiles = append(out.Projectiles, &c)
	}
	return out
}

func (s *State) removeEnemy(target *Enemy) {
	for i, e := range s.Enemies {
		if e == target {
			s.Enemies = append(s.Enemies[:i:i], s.Enemies[i+1:]...)
			return
		}
	}
}

func (s *State) removeProjectile(target *Projectile) {
	for i, p := range s.Projectiles {
		if p == target {
			s.Projectiles = append(s.Projectiles[:i:i], s.Projectiles[i+1:]...)
			return
		}
	}
}
