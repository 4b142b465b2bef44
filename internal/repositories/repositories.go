package repositories

import "errors"

// ErrNotFound is returned when a queried record does not exist. Callers
// should test with errors.Is; implementations wrap it with detail.
var ErrNotFound = errors.New("record not found")
