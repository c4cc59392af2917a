package game

import "math"

// MovePlayer seeks the player toward its target at PlayerSpeed. When the
// remaining distance is within one step the player lands exactly on the
// target.
func MovePlayer(p *Player, dt float64) {
	dx := p.TargetX - p.X
	dy := p.TargetY - p.Y
	dist := math.Hypot(dx, dy)
	if dist < PlayerEpsilon {
		return
	}

	move := PlayerSpeed * dt
	if move >= dist {
		p.X = p.TargetX
		p.Y = p.TargetY
		return
	}
	p.X += dx / dist * move
	p.Y += dy / dist * move
}

func (p *Player) SetTarget(x, y float64) {
	p.TargetX = x
	p.TargetY = y
}
