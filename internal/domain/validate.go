package domain

import "fmt"

// Physical plausibility bounds for the attached sensor model. Readings
// outside these bounds indicate a faulty sensor or decoder, not bad input:
// the record is still persisted because the stored payload is the evidence
// needed to diagnose the fault.
const (
	MinPlausibleTemperature = -40.0
	MaxPlausibleTemperature = 80.0
	MinPlausibleHumidity    = 0.0
	MaxPlausibleHumidity    = 100.0
)

// Issue describes one validation finding. Issues annotate a delivery; they
// never reject it.
type Issue struct {
	Check  string // "structure" or "range"
	Field  string
	Detail string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s %s", i.Check, i.Field, i.Detail)
}

// CheckStructure reports missing required identity and timing fields. The
// webhook schema has drifted across network-server versions, so a failure
// here means "process with defaults and log", never "drop the event".
func CheckStructure(event UplinkEvent) []Issue {
	var issues []Issue

	if event.EndDeviceIDs == nil {
		issues = append(issues, Issue{Check: "structure", Field: "end_device_ids", Detail: "missing"})
	} else if event.EndDeviceIDs.DeviceID == "" {
		issues = append(issues, Issue{Check: "structure", Field: "end_device_ids.device_id", Detail: "empty"})
	}

	if event.UplinkMsg == nil {
		issues = append(issues, Issue{Check: "structure", Field: "uplink_message", Detail: "missing"})
	}

	raw := RawReceivedAt(event)
	switch {
	case raw == "":
		issues = append(issues, Issue{Check: "structure", Field: "received_at", Detail: "missing"})
	case parseEventTime(raw).IsZero():
		issues = append(issues, Issue{Check: "structure", Field: "received_at", Detail: fmt.Sprintf("unparseable %q", raw)})
	}

	return issues
}

// CheckRanges reports physically implausible measurements on a normalized
// reading. Violations are logged as warnings upstream; the reading is
// persisted unchanged.
func CheckRanges(reading SensorReading) []Issue {
	var issues []Issue

	if reading.TemperatureCelsius < MinPlausibleTemperature || reading.TemperatureCelsius > MaxPlausibleTemperature {
		issues = append(issues, Issue{
			Check:  "range",
			Field:  "temperature_celsius",
			Detail: fmt.Sprintf("%.2f outside [%.0f, %.0f]", reading.TemperatureCelsius, MinPlausibleTemperature, MaxPlausibleTemperature),
		})
	}

	if reading.HumidityPercent < MinPlausibleHumidity || reading.HumidityPercent > MaxPlausibleHumidity {
		issues = append(issues, Issue{
			Check:  "range",
			Field:  "humidity_percent",
			Detail: fmt.Sprintf("%.2f outside [%.0f, %.0f]", reading.HumidityPercent, MinPlausibleHumidity, MaxPlausibleHumidity),
		})
	}

	return issues
}
