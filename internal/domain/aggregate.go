package domain

import "time"

// NominalUplinkInterval is the transmission interval the deployed sensors
// are configured for: one uplink every 2 minutes. The statistics success
// rate divides observed packets by the count this interval predicts for the
// window. It is a deployment assumption, not a LoRaWAN constant: if a
// device's real duty cycle differs, the rate degrades into noise rather
// than being flagged.
const NominalUplinkInterval = 2 * time.Minute

// DefaultQualitySampleSize is how many recent readings feed the signal
// classification when the caller does not say otherwise.
const DefaultQualitySampleSize = 100

// Signal-quality ratings by mean RSSI. Boundaries are half-open on the low
// side: exactly -70 dBm is "good", exactly -90 dBm is "poor".
const (
	SignalExcellent = "excellent" // > -70 dBm
	SignalGood      = "good"      // (-80, -70]
	SignalFair      = "fair"      // (-90, -80]
	SignalPoor      = "poor"      // <= -90 dBm
)

// Summary holds min/max/mean for one measured quantity.
type Summary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Statistics is the windowed aggregate served by the statistics endpoint.
type Statistics struct {
	SampleCount     int     `json:"sample_count"`
	ExpectedPackets int     `json:"expected_packets"`
	SuccessRatePct  float64 `json:"success_rate_pct"`
	Temperature     Summary `json:"temperature"`
	Humidity        Summary `json:"humidity"`
	RSSI            Summary `json:"rssi"`
	SNR             Summary `json:"snr"`
}

// SignalQuality is the classification served by the quality endpoint.
type SignalQuality struct {
	Rating       string         `json:"rating"`
	MeanRSSI     float64        `json:"mean_rssi"`
	LatestRSSI   float64        `json:"latest_rssi"`
	SampleCount  int            `json:"sample_count"`
	Distribution map[string]int `json:"distribution"`
}

// ComputeStatistics aggregates readings fetched for one device over a
// lookback window. It is pure over its input; nothing is persisted. The
// second return is false when there are no readings, which callers must
// translate to "no data"; an empty window has no meaningful min or mean.
func ComputeStatistics(readings []SensorReading, window time.Duration) (Statistics, bool) {
	if len(readings) == 0 {
		return Statistics{}, false
	}

	stats := Statistics{
		SampleCount: len(readings),
		Temperature: newSummary(readings[0].TemperatureCelsius),
		Humidity:    newSummary(readings[0].HumidityPercent),
		RSSI:        newSummary(readings[0].RSSI),
		SNR:         newSummary(readings[0].SNR),
	}

	for _, r := range readings[1:] {
		stats.Temperature.observe(r.TemperatureCelsius)
		stats.Humidity.observe(r.HumidityPercent)
		stats.RSSI.observe(r.RSSI)
		stats.SNR.observe(r.SNR)
	}

	n := float64(len(readings))
	stats.Temperature.Mean /= n
	stats.Humidity.Mean /= n
	stats.RSSI.Mean /= n
	stats.SNR.Mean /= n

	if expected := int(window / NominalUplinkInterval); expected > 0 {
		stats.ExpectedPackets = expected
		stats.SuccessRatePct = float64(stats.SampleCount) / float64(expected) * 100
	}

	return stats, true
}

// ClassifySignal rates the radio link from a device's most recent readings,
// ordered newest first as the store returns them. The second return is
// false when the device has no readings at all.
func ClassifySignal(readings []SensorReading) (SignalQuality, bool) {
	if len(readings) == 0 {
		return SignalQuality{}, false
	}

	quality := SignalQuality{
		LatestRSSI:  readings[0].RSSI,
		SampleCount: len(readings),
		Distribution: map[string]int{
			SignalExcellent: 0,
			SignalGood:      0,
			SignalFair:      0,
			SignalPoor:      0,
		},
	}

	var sum float64
	for _, r := range readings {
		sum += r.RSSI
		quality.Distribution[classifyRSSI(r.RSSI)]++
	}
	quality.MeanRSSI = sum / float64(len(readings))
	quality.Rating = classifyRSSI(quality.MeanRSSI)

	return quality, true
}

func classifyRSSI(rssi float64) string {
	switch {
	case rssi > -70:
		return SignalExcellent
	case rssi > -80:
		return SignalGood
	case rssi > -90:
		return SignalFair
	default:
		return SignalPoor
	}
}

func newSummary(v float64) Summary {
	return Summary{Min: v, Max: v, Mean: v}
}

// observe folds one value into the summary, accumulating the sum in Mean
// until the caller divides by the count.
func (s *Summary) observe(v float64) {
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
	s.Mean += v
}
