package domain

import (
	"encoding/json"
	"time"
)

// UplinkEvent mirrors the webhook body pushed by The Things Stack. Every
// nested block is optional in practice: older network-server versions omit
// decoded payloads, simulated uplinks carry no radio metadata, and some
// deployments strip gateway locations. Optional blocks are pointers so
// absence is distinguishable from a zero value.
type UplinkEvent struct {
	EndDeviceIDs *EndDeviceIDs  `json:"end_device_ids,omitempty"`
	ReceivedAt   string         `json:"received_at,omitempty"`
	UplinkMsg    *UplinkMessage `json:"uplink_message,omitempty"`

	// UniqueID is an explicit idempotency token. Deliveries replayed by the
	// importer carry one; live webhook traffic normally does not.
	UniqueID string `json:"unique_id,omitempty"`

	// Raw holds the verbatim request body for the audit trail.
	Raw json.RawMessage `json:"-"`
}

// EndDeviceIDs identifies the transmitting end device.
type EndDeviceIDs struct {
	DeviceID       string          `json:"device_id"`
	DevEUI         string          `json:"dev_eui,omitempty"`
	ApplicationIDs *ApplicationIDs `json:"application_ids,omitempty"`
}

// ApplicationIDs identifies the owning application.
type ApplicationIDs struct {
	ApplicationID string `json:"application_id"`
}

// UplinkMessage is the radio frame plus whatever the network server decoded.
type UplinkMessage struct {
	FPort          int             `json:"f_port,omitempty"`
	FCnt           int64           `json:"f_cnt,omitempty"`
	DecodedPayload *DecodedPayload `json:"decoded_payload,omitempty"`
	RxMetadata     []RxMetadata    `json:"rx_metadata,omitempty"`
	Settings       *TxSettings     `json:"settings,omitempty"`
	ReceivedAt     string          `json:"received_at,omitempty"`
}

// DecodedPayload holds the application-level measurements produced by the
// network server's payload formatter.
type DecodedPayload struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Counter     int64   `json:"counter"`
}

// RxMetadata describes one gateway's reception of the frame. A frame heard
// by multiple gateways produces multiple entries; the first is the
// best-signal gateway by network-server convention.
type RxMetadata struct {
	GatewayIDs *GatewayIDs  `json:"gateway_ids,omitempty"`
	RSSI       float64      `json:"rssi"`
	SNR        float64      `json:"snr"`
	Location   *Geolocation `json:"location,omitempty"`
}

// GatewayIDs identifies the receiving gateway.
type GatewayIDs struct {
	GatewayID string `json:"gateway_id"`
	EUI       string `json:"eui,omitempty"`
}

// TxSettings carries the data-rate and frequency the frame was sent with.
// Frequency is textual in the webhook schema ("868300000").
type TxSettings struct {
	DataRate  *DataRate `json:"data_rate,omitempty"`
	Frequency string    `json:"frequency,omitempty"`
}

// DataRate wraps the LoRa modulation settings.
type DataRate struct {
	LoRa *LoRaDataRate `json:"lora,omitempty"`
}

// LoRaDataRate holds spreading factor and bandwidth in Hz.
type LoRaDataRate struct {
	Bandwidth       int `json:"bandwidth"`
	SpreadingFactor int `json:"spreading_factor"`
}

// Geolocation is a WGS-84 position, present only when the gateway reports one.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude,omitempty"`
}

// SensorReading is the canonical persisted record, one per accepted uplink.
// Identity fields are denormalized copies from the event, not foreign keys.
// A reading is never mutated after creation; it leaves the store only via
// the retention reaper.
type SensorReading struct {
	ID            int64  `json:"id,omitempty"`
	DeviceID      string `json:"device_id"`
	DevEUI        string `json:"dev_eui"`
	ApplicationID string `json:"application_id"`

	TemperatureCelsius float64 `json:"temperature_celsius"`
	HumidityPercent    float64 `json:"humidity_percent"`
	PacketCounter      int64   `json:"packet_counter"`

	FPort           int     `json:"f_port"`
	FCnt            int64   `json:"f_cnt"`
	GatewayID       string  `json:"gateway_id"`
	GatewayEUI      string  `json:"gateway_eui"`
	RSSI            float64 `json:"rssi"`
	SNR             float64 `json:"snr"`
	SpreadingFactor int     `json:"spreading_factor"`
	Bandwidth       int     `json:"bandwidth"`
	Frequency       int64   `json:"frequency"`

	Location *Geolocation `json:"location,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`

	// UniqueID is the dedup fingerprint. Empty on rows imported from before
	// the dedup feature existed; uniqueness is enforced only when present.
	UniqueID string `json:"unique_id,omitempty"`

	// FullPayload retains the original event verbatim for audit and replay.
	FullPayload json.RawMessage `json:"full_payload,omitempty"`
}
