package storage

import "time"

// entry is the unit stored in the keyed dictionary: a key, its tagged
// value, and an optional absolute expiry. Absence of expiry means the key
// never expires.
type entry struct {
	key    string
	value  Value
	expiry *time.Time
}

func (e *entry) expired(now time.Time) bool {
	return e.expiry != nil && now.After(*e.expiry)
}
