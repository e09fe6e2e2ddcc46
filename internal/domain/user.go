package domain

import "time"

// User represents an authenticated account. Identity is owned by the
// external auth provider; the core only needs the id and the spend
// capability flag.
type User struct {
	ID        string
	Email     string
	Locale    string
	CanSpend  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
