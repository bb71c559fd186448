package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateReport is returned when a reporter reports the same post twice.
var ErrDuplicateReport = errors.New("post already reported by this device")
