package domain

import "time"

// Identity is the caller performing an operation, supplied by the auth layer.
type Identity struct {
	UserID int64
	Role   Role
}

// Token represents issued access token metadata.
type Token struct {
	Value     string
	UserID    int64
	Role      Role
	ExpiresAt time.Time
}
