package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/charlist/internal/device"
)

// declarationBits pairs each go-ble declaration property with its device.Property flag.
var declarationBits = []struct {
	ble  ble.Property
	flag device.Property
}{
	{ble.CharBroadcast, device.PropertyBroadcast},
	{ble.CharRead, device.PropertyRead},
	{ble.CharWriteNR, device.PropertyWriteWithoutResponse},
	{ble.CharWrite, device.PropertyWrite},
	{ble.CharNotify, device.PropertyNotify},
	{ble.CharIndicate, device.PropertyIndicate},
	{ble.CharSignedWrite, device.PropertyAuthenticatedSignedWrites},
	{ble.CharExtended, device.PropertyExtendedProperties},
}

// NewProperties converts ble.Property declaration bits to a device.Property mask.
func NewProperties(p ble.Property) device.Property {
	var out device.Property
	for _, b := range declarationBits {
		if p&b.ble != 0 {
			out |= b.flag
		}
	}
	return out
}
