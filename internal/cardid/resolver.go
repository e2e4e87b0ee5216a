// Package cardid reconstructs card identifiers from the card window of a
// secure removal packet.
//
// Two readers exist in the field. Readers reporting device type 4 send the
// identifier most-significant byte first with a status byte embedded at index
// 4. Older readers send it least-significant byte first with the fifth byte
// at index 6; some of that hardware reported a fixed fifth byte, which is
// compensated by adding 2^32 to identifiers below a fixed threshold.
package cardid

import "errors"

const (
	// DeviceTypeMSBReader is the device type of readers using the big-endian layout.
	DeviceTypeMSBReader = 4

	// WindowSize is the number of bytes the resolver needs.
	WindowSize = 7

	legacyThreshold  = 154_000_000_000
	legacyCorrection = 4_294_967_296 // 0x1_0000_0000
)

// ErrShortWindow is returned when fewer than WindowSize bytes are supplied.
var ErrShortWindow = errors.New("cardid: card window too short")

// Resolve returns the card identifier encoded in window for the given device type.
func Resolve(deviceType uint8, window []byte) (int64, error) {
	if len(window) < WindowSize {
		return 0, ErrShortWindow
	}
	if deviceType == DeviceTypeMSBReader {
		return msbReader(window), nil
	}
	return lsbReader(window), nil
}

// msbReader skips window[4], which carries the removal status.
func msbReader(b []byte) int64 {
	return int64(b[0])<<32 +
		int64(b[1])<<24 +
		int64(b[2])<<16 +
		int64(b[3])<<8 +
		int64(b[5])
}

func lsbReader(b []byte) int64 {
	id := int64(b[0]) +
		int64(b[1])<<8 +
		int64(b[2])<<16 +
		int64(b[3])<<24 +
		int64(b[6])<<32
	if id < legacyThreshold {
		id += legacyCorrection
	}
	return id
}
