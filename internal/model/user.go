package model

import (
	"time"
)

type User struct {
	ID        string    `db:"id"`
	Phone     string    `db:"phone"`
	CreatedAt time.Time `db:"created_at"`
}

// PhoneTail returns the last four digits of the phone number, or "user"
// when no phone is on file. Used in file names, never the full number.
func (u *User) PhoneTail() string {
	if u == nil || u.Phone == "" {
		return "user"
	}
	if len(u.Phone) <= 4 {
		return u.Phone
	}
	return u.Phone[len(u.Phone)-4:]
}
