package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// fingerprintHexLen is the truncated fingerprint length. 16 hex characters
// carry 64 bits; a device emits well under 10^5 frames over its lifetime, so
// the per-device collision probability is negligible at this volume.
const fingerprintHexLen = 16

// Fingerprint derives the dedup key for an uplink event. An explicit
// unique_id supplied by the caller wins verbatim; otherwise the key is a
// deterministic hash of device identity, frame counter, and the raw upstream
// timestamp string. Frame counter plus device is the natural retransmission
// signal for LoRaWAN; hashing keeps the key a fixed length no matter which
// fields were present.
func Fingerprint(event UplinkEvent) string {
	if event.UniqueID != "" {
		return event.UniqueID
	}

	var deviceID string
	if event.EndDeviceIDs != nil {
		deviceID = event.EndDeviceIDs.DeviceID
	}
	var fCnt int64
	if event.UplinkMsg != nil {
		fCnt = event.UplinkMsg.FCnt
	}

	input := fmt.Sprintf("%s|%d|%s", deviceID, fCnt, RawReceivedAt(event))
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:fingerprintHexLen]
}
