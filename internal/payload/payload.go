// Package payload packs sensor readings into the two broadcast formats the tag
// advertises and parses them back on the receiving side.
//
// Raw4Accel v1 (24 bytes, big-endian, manufacturer data):
//
//	[0:2]   int16  acceleration X (mg)
//	[2:4]   int16  acceleration Y (mg)
//	[4:6]   int16  acceleration Z (mg)
//	[6:10]  uint32 buffered sample count
//	[10]    uint8  format version (0x01)
//	[11]    uint8  reserved
//	[12:14] uint16 vector magnitude (mg)
//	[14:24]        reserved
//
// URL v1 (18 bytes, Eddystone-URL body): the 9-byte prefix 0x03 "ruu.vi/#"
// followed by 9 characters. The first 8 are unpadded URL-safe base64 of
// [0x04, humidity, temp int, temp hundredths, pressure hi, pressure lo]; the
// last is the battery level as one character of the same alphabet.
package payload

import "fmt"

const (
	RawDataLength    = 24
	URLBaseLength    = 9
	URLDataLength    = 9
	URLPayloadLength = URLBaseLength + URLDataLength

	RawFormatVersion = 0x01
	URLFormatVersion = 0x04

	// MaxAccelerationSamples bounds SensorReading.Acceleration.
	MaxAccelerationSamples = 4
)

// URLBase is https://ruu.vi/# with 0x03 as the Eddystone https:// scheme byte.
var URLBase = [URLBaseLength]byte{0x03, 'r', 'u', 'u', '.', 'v', 'i', '/', '#'}

// Format identifies the shape of a Broadcast.
type Format uint8

const (
	FormatRaw4Accel Format = iota + 1
	FormatURL
)

func (f Format) String() string {
	switch f {
	case FormatRaw4Accel:
		return "raw4accel"
	case FormatURL:
		return "url"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// Length is the fixed payload length of the format, or 0 if unknown.
func (f Format) Length() int {
	switch f {
	case FormatRaw4Accel:
		return RawDataLength
	case FormatURL:
		return URLPayloadLength
	default:
		return 0
	}
}

// AccelerationSample is one accelerometer reading in milli-g.
type AccelerationSample struct {
	X, Y, Z int16
}

// SensorReading is the record assembled once per sampling cycle.
type SensorReading struct {
	Temperature  int32  // 0.01 °C
	Pressure     uint32 // Pa
	Humidity     uint32 // 0.01 %RH
	Battery      uint16 // mV
	Acceleration []AccelerationSample
}

// Broadcast is the payload handed to the radio. Data always has Format.Length() bytes.
type Broadcast struct {
	Format Format
	Data   []byte
}

// Raw builds a Broadcast from an encoded Raw4Accel payload.
func Raw(b [RawDataLength]byte) Broadcast {
	return Broadcast{Format: FormatRaw4Accel, Data: b[:]}
}

// URL builds a Broadcast from an encoded URL payload.
func URL(b [URLPayloadLength]byte) Broadcast {
	return Broadcast{Format: FormatURL, Data: b[:]}
}
