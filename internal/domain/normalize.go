package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Defaults substituted when an optional field is missing from the event.
const (
	// UnknownGateway marks radio metadata the network server did not supply.
	UnknownGateway = "unknown"
)

// ParseUplinkEvent deserializes a webhook delivery body into an UplinkEvent,
// retaining the verbatim bytes for the audit payload.
func ParseUplinkEvent(body []byte) (UplinkEvent, error) {
	var event UplinkEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return UplinkEvent{}, fmt.Errorf("parse uplink event: %w", err)
	}
	event.Raw = body
	return event, nil
}

// NormalizeUplink maps an uplink event of unknown completeness onto a
// canonical SensorReading. It is total over UplinkEvent: every missing
// optional block maps to a documented default (0 for numerics,
// UnknownGateway for radio identifiers, nil geolocation) and nothing here
// performs I/O. Structural problems are left for CheckStructure; a reading
// is produced regardless.
func NormalizeUplink(event UplinkEvent) SensorReading {
	reading := SensorReading{
		GatewayID:   UnknownGateway,
		GatewayEUI:  UnknownGateway,
		ReceivedAt:  parseEventTime(RawReceivedAt(event)),
		CreatedAt:   clock.Now().UTC(),
		FullPayload: event.Raw,
	}

	if ids := event.EndDeviceIDs; ids != nil {
		reading.DeviceID = ids.DeviceID
		reading.DevEUI = ids.DevEUI
		if ids.ApplicationIDs != nil {
			reading.ApplicationID = ids.ApplicationIDs.ApplicationID
		}
	}

	uplink := event.UplinkMsg
	if uplink == nil {
		return reading
	}

	reading.FPort = uplink.FPort
	reading.FCnt = uplink.FCnt

	if decoded := uplink.DecodedPayload; decoded != nil {
		reading.TemperatureCelsius = decoded.Temperature
		reading.HumidityPercent = decoded.Humidity
		reading.PacketCounter = decoded.Counter
	}

	if len(uplink.RxMetadata) > 0 {
		rx := uplink.RxMetadata[0]
		if rx.GatewayIDs != nil {
			if rx.GatewayIDs.GatewayID != "" {
				reading.GatewayID = rx.GatewayIDs.GatewayID
			}
			if rx.GatewayIDs.EUI != "" {
				reading.GatewayEUI = rx.GatewayIDs.EUI
			}
		}
		reading.RSSI = rx.RSSI
		reading.SNR = rx.SNR
		if rx.Location != nil {
			loc := *rx.Location
			reading.Location = &loc
		}
	}

	if settings := uplink.Settings; settings != nil {
		reading.Frequency = parseFrequency(settings.Frequency)
		if settings.DataRate != nil && settings.DataRate.LoRa != nil {
			reading.SpreadingFactor = settings.DataRate.LoRa.SpreadingFactor
			reading.Bandwidth = settings.DataRate.LoRa.Bandwidth
		}
	}

	return reading
}

// RawReceivedAt returns the upstream timestamp string exactly as delivered,
// preferring the top-level event timestamp over the uplink block's. The raw
// string feeds the fingerprint, so it must never be reformatted.
func RawReceivedAt(event UplinkEvent) string {
	if event.ReceivedAt != "" {
		return event.ReceivedAt
	}
	if event.UplinkMsg != nil {
		return event.UplinkMsg.ReceivedAt
	}
	return ""
}

// parseEventTime parses the network server's RFC 3339 timestamp, returning
// the zero time on failure. The zero value is what CheckStructure flags.
func parseEventTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// parseFrequency converts the webhook's textual frequency ("868300000") to
// Hz, returning 0 for anything non-numeric.
func parseFrequency(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
