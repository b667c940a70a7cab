package device

import (
	"fmt"

	"github.com/srg/charlist/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to the lookup format (lowercase, no dashes, no 0x prefix).
// Full 128-bit UUIDs in Bluetooth SIG base format (0000xxxx-0000-1000-8000-00805f9b34fb)
// collapse to the 16-bit short form (xxxx).
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}


// KnownCharacteristicName returns the assigned name of a characteristic UUID, "" if unknown.
func KnownCharacteristicName(uuid string) string {
	return bledb.LookupCharacteristic(uuid)
}

// KnownServiceName returns the assigned name of a service UUID, "" if unknown.
func KnownServiceName(uuid string) string {
	return bledb.LookupService(uuid)
}

// KnownDescriptorName returns the assigned name of a descriptor UUID, "" if unknown.
func KnownDescriptorName(uuid string) string {
	return bledb.LookupDescriptor(uuid)
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if !isHexUUID(normalized) {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// isHexUUID accepts the 16, 32 and 128-bit normalized forms.
func isHexUUID(s string) bool {
	switch len(s) {
	case 4, 8, 32:
	default:
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
