// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConfigIncomplete indicates required settings (coordinates or API key)
// are missing, so no upstream fetch was attempted.
var ErrConfigIncomplete = errors.New("configuration incomplete")

// ErrUnavailable indicates no tier produced data and the upstream fetch
// failed (or fallback data was older than the fallback window). This is the
// only failure a caller of the weather service ever sees.
var ErrUnavailable = errors.New("weather data unavailable")
