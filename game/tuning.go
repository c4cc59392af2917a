package game

// Arena tuning. Distances are world units, times are seconds.
const (
	PhysicsStep = 0.025

	PlayerSpeed     = 144.0
	PlayerEpsilon   = 0.01
	PlayerHealth    = 100
	PlayerSpawnX    = 100.0
	PlayerSpawnY    = 100.0
	EnemySpeed      = 60.0
	EnemyEpsilon    = 0.01
	EnemyHealth     = 50
	EnemyRadius     = 15.0
	EnemySpawnMax   = 400 // enemies spawn in [0, EnemySpawnMax) on both axes
	ProjectileSpeed = 960.0
	ProjectileLife  = 13.0
	ProjectileDmg   = 34

	EnemySpawnInterval = 3.3
	ShootInterval      = 1.0
)
