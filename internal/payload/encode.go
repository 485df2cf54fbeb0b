package payload

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

const (
	urlPressureOffset = 50000 // Pa
	batteryBase       = 1600  // mV
	batteryStep       = 32    // mV per level
	batteryLevels     = 64
	maxHumidity       = 200 // 100 %RH at 0.5 % per lsb
	maxTemperatureInt = 127
)

// urlAlphabet is the alphabet of base64.RawURLEncoding.
const urlAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var urlEncoding = base64.RawURLEncoding

// EncodeRaw4Accel serializes one acceleration sample and the FIFO sample count.
func EncodeRaw4Accel(sample AccelerationSample, sampleCount uint32) [RawDataLength]byte {
	var out [RawDataLength]byte
	binary.BigEndian.PutUint16(out[0:2], uint16(sample.X))
	binary.BigEndian.PutUint16(out[2:4], uint16(sample.Y))
	binary.BigEndian.PutUint16(out[4:6], uint16(sample.Z))
	binary.BigEndian.PutUint32(out[6:10], sampleCount)
	out[10] = RawFormatVersion
	binary.BigEndian.PutUint16(out[12:14], magnitude(sample))
	return out
}

// EncodeURL copies base verbatim and appends the 9-character reading encoding.
func EncodeURL(reading SensorReading, base [URLBaseLength]byte) [URLPayloadLength]byte {
	var out [URLPayloadLength]byte
	copy(out[:URLBaseLength], base[:])

	var raw [6]byte
	raw[0] = URLFormatVersion
	raw[1] = humidityByte(reading.Humidity)
	raw[2], raw[3] = temperatureBytes(reading.Temperature)
	binary.BigEndian.PutUint16(raw[4:6], pressureWord(reading.Pressure))

	urlEncoding.Encode(out[URLBaseLength:URLBaseLength+8], raw[:])
	out[URLPayloadLength-1] = urlAlphabet[batteryLevel(reading.Battery)]
	return out
}

func magnitude(s AccelerationSample) uint16 {
	x, y, z := float64(s.X), float64(s.Y), float64(s.Z)
	m := math.Round(math.Sqrt(x*x + y*y + z*z))
	if m > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(m)
}

func humidityByte(h uint32) byte {
	v := h / 50
	if v > maxHumidity {
		v = maxHumidity
	}
	return byte(v)
}

// temperatureBytes returns sign-magnitude whole degrees (bit 7 set when
// negative) and the hundredths remainder.
func temperatureBytes(t int32) (byte, byte) {
	neg := t < 0
	abs := int64(t)
	if neg {
		abs = -abs
	}
	whole, frac := abs/100, abs%100
	if whole > maxTemperatureInt {
		whole, frac = maxTemperatureInt, 99
	}
	b := byte(whole)
	if neg {
		b |= 0x80
	}
	return b, byte(frac)
}

func pressureWord(p uint32) uint16 {
	if p <= urlPressureOffset {
		return 0
	}
	v := p - urlPressureOffset
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

func batteryLevel(mv uint16) int {
	if mv <= batteryBase {
		return 0
	}
	l := int(mv-batteryBase) / batteryStep
	if l >= batteryLevels {
		l = batteryLevels - 1
	}
	return l
}
