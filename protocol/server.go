package protocol

// ArenaState is the snapshot sent to clients. ServerTimestamp is the
// production time in unix milliseconds.
type ArenaState struct {
	Player          PlayerState       `json:"player"`
	Enemies         []EnemyState      `json:"enemies"`
	Projectiles     []ProjectileState `json:"projectiles"`
	ServerTimestamp int64             `json:"serverTimestamp,omitempty"`
}

type PlayerState struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Health    int     `json:"health"`
	MaxHealth int     `json:"maxHealth"`
	TargetX   float64 `json:"targetX"`
	TargetY   float64 `json:"targetY"`
}

type EnemyState struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Health    int     `json:"health"`
	MaxHealth int     `json:"maxHealth"`
}

type ProjectileState struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Damage int     `json:"damage"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
}

// Clone returns a copy that shares no slices with s.
func (s ArenaState) Clone() ArenaState {
	out := s
	out.Enemies = append(make([]EnemyState, 0, len(s.Enemies)), s.Enemies...)
	out.Projectiles = append(make([]ProjectileState, 0, len(s.Projectiles)), s.Projectiles...)
	return out
}
