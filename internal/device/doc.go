// Package device defines the GATT characteristic data model shown by charlist and the
// broker contract used to obtain it.
//
// The package provides:
//   - CharacteristicInfo and the Property bitmask with its fourteen named flags
//   - the Broker and DeviceHandle interfaces implemented by the go-ble backend
//   - typed errors shared by every backend (NotFoundError, ConnectionError, sentinels)
//   - UUID normalization and validation helpers
package device
