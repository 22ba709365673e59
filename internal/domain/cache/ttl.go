package cache

import (
	"time"

	"github.com/weathervane/weathervane/internal/domain/weather"
)

// TTL clamp bounds, applied whenever a day forecast is present.
const (
	MinTTLSeconds = 1800
	MaxTTLSeconds = 21600
)

// Pictocode classes the policy reacts to.
var (
	unstablePictocodes = map[int]bool{8: true, 9: true, 13: true, 14: true}
	stablePictocodes   = map[int]bool{1: true, 2: true, 3: true}
)

// Decision records how a TTL was computed.
type Decision struct {
	BaseSeconds  int
	Modifier     float64
	FinalSeconds int
}

// TTL returns the decision as a duration.
func (d Decision) TTL() time.Duration {
	return time.Duration(d.FinalSeconds) * time.Second
}

// TTLPolicy derives an expiration from the shape of a fetched payload.
//
// Volatile conditions shorten the TTL so stale forecasts age out quickly;
// stable high-confidence conditions stretch it to spare upstream quota.
type TTLPolicy struct{}

// Compute derives the TTL for a payload given the configured base interval.
//
// Without a structured day forecast the raw base is returned with no
// clamping; the clamp applies only to the modifier branch. All applicable
// modifiers compose multiplicatively.
func (TTLPolicy) Compute(baseIntervalHours int, p *weather.Payload) Decision {
	base := baseIntervalHours * 3600
	d := Decision{BaseSeconds: base, Modifier: 1.0, FinalSeconds: base}

	if !p.HasForecast() {
		return d
	}

	day := p.FirstDay()

	if day.RainProbability > 70 || unstablePictocodes[day.Pictocode] {
		d.Modifier *= 0.5
	}
	if day.Predictability < 30 {
		d.Modifier *= 0.7
	}
	if day.RainProbability < 20 && day.Predictability > 70 && stablePictocodes[day.Pictocode] {
		d.Modifier *= 1.5
	}

	final := int(float64(base) * d.Modifier)
	if final < MinTTLSeconds {
		final = MinTTLSeconds
	}
	if final > MaxTTLSeconds {
		final = MaxTTLSeconds
	}
	d.FinalSeconds = final
	return d
}
