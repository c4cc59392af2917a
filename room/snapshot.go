package room

import (
	"arena/game"
	"arena/protocol"
)

func buildSnapshot(s *game.State, ts int64) protocol.ArenaState {
	snapshot := protocol.ArenaState{
		Player: protocol.PlayerState{
			ID:        s.Player.ID,
			X:         s.Player.X,
			Y:         s.Player.Y,
			Health:    s.Player.Health,
			MaxHealth: s.Player.MaxHealth,
			TargetX:   s.Player.TargetX,
			TargetY:   s.Player.TargetY,
		},
		Enemies:         make([]protocol.EnemyState, 0, len(s.Enemies)),
		Projectiles:     make([]protocol.ProjectileState, 0, len(s.Projectiles)),
		ServerTimestamp: ts,
	}
	for _, e := range s.Enemies {
		snapshot.Enemies = append(snapshot.Enemies, protocol.EnemyState{
			ID:        e.ID,
			X:         e.X,
			Y:         e.Y,
			Health:    e.Health,
			MaxHealth: e.MaxHealth,
		})
	}
	for _, p := range s.Projectiles {
		snapshot.Projectiles = append(snapshot.Projectiles, protocol.ProjectileState{
			ID:     p.ID,
			X:      p.X,
			Y:      p.Y,
			Damage: p.Damage,
			VX:     p.VX,
			VY:     p.VY,
		})
	}
	return snapshot
}
