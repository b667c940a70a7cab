package device

import (
	"fmt"
	"strings"
)

// Property is the bitmask of GATT characteristic capabilities. Bits 0..7 match the
// characteristic declaration property byte; the upper bits carry extended properties
// and permission requirements.
type Property uint32

const (
	PropertyBroadcast                   Property = 1 << 0
	PropertyRead                        Property = 1 << 1
	PropertyWriteWithoutResponse        Property = 1 << 2
	PropertyWrite                       Property = 1 << 3
	PropertyNotify                      Property = 1 << 4
	PropertyIndicate                    Property = 1 << 5
	PropertyAuthenticatedSignedWrites   Property = 1 << 6
	PropertyExtendedProperties          Property = 1 << 7
	PropertyReliableWrite               Property = 1 << 8
	PropertyWritableAuxiliaries         Property = 1 << 9
	PropertyReadEncrypted               Property = 1 << 10
	PropertyWriteEncrypted              Property = 1 << 11
	PropertyReadEncryptedAuthenticated  Property = 1 << 12
	PropertyWriteEncryptedAuthenticated Property = 1 << 13
)

// PropertyFlag names one bit of a Property mask.
type PropertyFlag struct {
	Key   string   // snake_case identifier, stable across output formats
	Label string   // human-readable label
	Bit   Property // single bit
}

var propertyFlags = []PropertyFlag{
	{Key: "broadcast", Label: "Broadcast", Bit: PropertyBroadcast},
	{Key: "read", Label: "Read", Bit: PropertyRead},
	{Key: "write_without_response", Label: "Write Without Response", Bit: PropertyWriteWithoutResponse},
	{Key: "write", Label: "Write", Bit: PropertyWrite},
	{Key: "notify", Label: "Notify", Bit: PropertyNotify},
	{Key: "indicate", Label: "Indicate", Bit: PropertyIndicate},
	{Key: "authenticated_signed_writes", Label: "Authenticated Signed Writes", Bit: PropertyAuthenticatedSignedWrites},
	{Key: "extended_properties", Label: "Extended Properties", Bit: PropertyExtendedProperties},
	{Key: "reliable_write", Label: "Reliable Write", Bit: PropertyReliableWrite},
	{Key: "writable_auxiliaries", Label: "Writable Auxiliaries", Bit: PropertyWritableAuxiliaries},
	{Key: "read_encrypted", Label: "Read Encrypted", Bit: PropertyReadEncrypted},
	{Key: "write_encrypted", Label: "Write Encrypted", Bit: PropertyWriteEncrypted},
	{Key: "read_encrypted_authenticated", Label: "Read Encrypted Authenticated", Bit: PropertyReadEncryptedAuthenticated},
	{Key: "write_encrypted_authenticated", Label: "Write Encrypted Authenticated", Bit: PropertyWriteEncryptedAuthenticated},
}

// PropertyFlags returns the fourteen known flags in display order.
// The returned slice is a copy.
func PropertyFlags() []PropertyFlag {
	out := make([]PropertyFlag, len(propertyFlags))
	copy(out, propertyFlags)
	return out
}

// Has reports whether every bit of flag is set in p.
func (p Property) Has(flag Property) bool {
	return flag != 0 && p&flag == flag
}

// String lists the set flags by key, joined with "|". Unknown bits are rendered in hex.
func (p Property) String() string {
	if p == 0 {
		return "none"
	}
	var parts []string
	rest := p
	for _, f := range propertyFlags {
		if p&f.Bit != 0 {
			parts = append(parts, f.Key)
			rest &^= f.Bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseProperties parses a comma separated list of flag keys (e.g. "read,notify").
// Keys are matched case-insensitively; "-" and " " are accepted in place of "_".
func ParseProperties(s string) (Property, error) {
	var p Property
	for _, raw := range strings.Split(s, ",") {
		key := strings.ToLower(strings.TrimSpace(raw))
		if key == "" {
			continue
		}
		key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
		found := false
		for _, f := range propertyFlags {
			if f.Key == key {
				p |= f.Bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown characteristic property %q", raw)
		}
	}
	return p, nil
}
