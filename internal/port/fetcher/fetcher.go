// Package fetcher defines the port interface for the upstream weather API.
package fetcher

import (
	"context"

	"github.com/weathervane/weathervane/internal/domain/weather"
)

// Fetcher performs the network call to the weather provider. It returns the
// decoded payload together with the raw provider bytes (cached verbatim), or
// a typed failure matching domain.ErrUnavailable.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (*weather.Payload, []byte, error)
}
