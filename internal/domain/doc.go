// Package domain models LoRaWAN uplink telemetry from The Things Stack.
//
// # Data Source
//
// Readings originate from a The Things Stack (TTN v3) webhook integration.
// The network server POSTs one JSON document per received uplink, nesting
// device identity under "end_device_ids" and the radio frame under
// "uplink_message". The shape has drifted across network-server releases:
// decoded payloads, rx_metadata, data-rate settings, and gateway locations
// are all optional, and simulated uplinks omit radio metadata entirely.
// [UplinkEvent] therefore represents every nested block with tagged
// presence (pointers), and [NormalizeUplink] is total over it.
//
// # Defaults
//
// Missing optional fields normalize to documented defaults rather than
// failing:
//
//	numeric measurements and counters → 0
//	gateway_id / gateway_eui          → "unknown"
//	geolocation                       → absent (nil)
//	frequency (textual in the schema) → parsed to Hz, 0 if non-numeric
//
// # Validation
//
// Two independent checks annotate a delivery without ever rejecting it:
//
//	structure — device identity block and a parseable received_at present.
//	range     — temperature in [-40, 80] °C, humidity in [0, 100] %.
//
// Out-of-range readings are persisted unchanged. The stored full_payload is
// the permanent audit trail; discarding an implausible reading would destroy
// the evidence needed to diagnose the sensor fault that produced it.
//
// # Deduplication
//
// LoRaWAN retransmits: the same frame can reach the server through several
// gateways or be redelivered by the webhook's retry policy. The dedup key is
// an explicit unique_id when the caller supplies one, otherwise a SHA-256
// hash of device_id|f_cnt|raw timestamp truncated to 16 hex characters
// (64 bits — ample at under 10^5 frames per device lifetime). See
// [Fingerprint]. The storage layer's uniqueness constraint, not the
// advisory pre-check, is the final arbiter under concurrency.
//
// # Aggregation
//
// [ComputeStatistics] and [ClassifySignal] are pure over a fetched result
// set; no aggregates are persisted. The packet success rate assumes
// [NominalUplinkInterval] (2 minutes) — a deployment setting, not a
// protocol constant. Signal ratings bucket mean RSSI:
//
//	excellent  > -70 dBm
//	good       (-80, -70]
//	fair       (-90, -80]
//	poor       <= -90 dBm
package domain
