package model

// User is a seeded reviewer account. Users are never created or mutated by
// the application itself; PasswordHash holds a bcrypt digest.
type User struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password"`
	Role         string `db:"role"`
}

// Identity is the caller on whose behalf an operation runs. It is resolved
// from a session token and attributed to comments and events.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
