// Package weather defines the upstream forecast payload model.
package weather

// Default field values used when the provider omits a field. They are chosen
// so that no TTL modifier fires on incomplete data.
const (
	DefaultRainProbability = 0
	DefaultPredictability  = 50
	DefaultPictocode       = 2
)

// Payload is the structured response of the upstream forecast API.
// Raw provider bytes are cached verbatim; Payload is the decoded view.
type Payload struct {
	Metadata Metadata `json:"metadata"`
	Units    Units    `json:"units"`
	DataDay  DataDay  `json:"data_day"`
}

// Metadata describes the model run behind a payload.
type Metadata struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ModelRunUTC  string  `json:"modelrun_utc"`
	UTCTimeshift float64 `json:"utc_timeoffset"`
}

// Units names the measurement units of the day arrays.
type Units struct {
	Temperature   string `json:"temperature"`
	Precipitation string `json:"precipitation"`
}

// DataDay holds the per-day forecast arrays. All arrays are indexed by day;
// index 0 is the current day.
type DataDay struct {
	Time                     []string  `json:"time"`
	Pictocode                []int     `json:"pictocode"`
	TemperatureMax           []float64 `json:"temperature_max"`
	TemperatureMin           []float64 `json:"temperature_min"`
	Precipitation            []float64 `json:"precipitation"`
	PrecipitationProbability []int     `json:"precipitation_probability"`
	Predictability           []int     `json:"predictability"`
}

// DayForecast is the first-day view the TTL policy inspects.
type DayForecast struct {
	Pictocode       int
	RainProbability int
	Predictability  int
	TemperatureMax  float64
	TemperatureMin  float64
	Precipitation   float64
}

// HasForecast reports whether the payload carries a structured day forecast.
func (p *Payload) HasForecast() bool {
	return p != nil && len(p.DataDay.Time) > 0
}

// FirstDay returns the first forecast day, substituting neutral defaults for
// any missing array. Call HasForecast first; FirstDay on a payload without a
// forecast returns only defaults.
func (p *Payload) FirstDay() DayForecast {
	d := DayForecast{
		Pictocode:       DefaultPictocode,
		RainProbability: DefaultRainProbability,
		Predictability:  DefaultPredictability,
	}
	if p == nil {
		return d
	}
	if len(p.DataDay.Pictocode) > 0 {
		d.Pictocode = p.DataDay.Pictocode[0]
	}
	if len(p.DataDay.PrecipitationProbability) > 0 {
		d.RainProbability = p.DataDay.PrecipitationProbability[0]
	}
	if len(p.DataDay.Predictability) > 0 {
		d.Predictability = p.DataDay.Predictability[0]
	}
	if len(p.DataDay.TemperatureMax) > 0 {
		d.TemperatureMax = p.DataDay.TemperatureMax[0]
	}
	if len(p.DataDay.TemperatureMin) > 0 {
		d.TemperatureMin = p.DataDay.TemperatureMin[0]
	}
	if len(p.DataDay.Precipitation) > 0 {
		d.Precipitation = p.DataDay.Precipitation[0]
	}
	return d
}
