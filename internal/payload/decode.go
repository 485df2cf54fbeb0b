package payload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrShortPayload   = errors.New("payload too short")
	ErrUnknownVersion = errors.New("unknown format version")
	ErrURLBase        = errors.New("url base mismatch")
)

// Raw4Accel is a decoded Raw4Accel payload.
type Raw4Accel struct {
	Sample      AccelerationSample
	SampleCount uint32
	Version     uint8
	Magnitude   uint16
}

// URLReading is a decoded URL payload. Values carry the format's resolution:
// humidity 0.5 %, pressure 1 Pa, battery 32 mV.
type URLReading struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	Pressure    float64 // hPa
	Battery     float64 // V
}

// DecodeRaw4Accel parses a Raw4Accel payload as received in manufacturer data.
func DecodeRaw4Accel(data []byte) (Raw4Accel, error) {
	if len(data) < RawDataLength {
		return Raw4Accel{}, fmt.Errorf("raw4accel: %w: %d", ErrShortPayload, len(data))
	}
	if data[10] != RawFormatVersion {
		return Raw4Accel{}, fmt.Errorf("raw4accel: %w: %02X", ErrUnknownVersion, data[10])
	}
	return Raw4Accel{
		Sample: AccelerationSample{
			X: int16(binary.BigEndian.Uint16(data[0:2])),
			Y: int16(binary.BigEndian.Uint16(data[2:4])),
			Z: int16(binary.BigEndian.Uint16(data[4:6])),
		},
		SampleCount: binary.BigEndian.Uint32(data[6:10]),
		Version:     data[10],
		Magnitude:   binary.BigEndian.Uint16(data[12:14]),
	}, nil
}

// DecodeURL parses a URL payload. base is the prefix the sender was configured with.
func DecodeURL(data []byte, base [URLBaseLength]byte) (URLReading, error) {
	if len(data) < URLPayloadLength {
		return URLReading{}, fmt.Errorf("url: %w: %d", ErrShortPayload, len(data))
	}
	if !bytes.Equal(data[:URLBaseLength], base[:]) {
		return URLReading{}, fmt.Errorf("url: %w", ErrURLBase)
	}
	body := data[URLBaseLength:URLPayloadLength]

	var raw [6]byte
	n, err := urlEncoding.Decode(raw[:], body[:8])
	if err != nil {
		return URLReading{}, fmt.Errorf("url: decode: %w", err)
	}
	if n != len(raw) {
		return URLReading{}, fmt.Errorf("url: %w: %d", ErrShortPayload, n)
	}
	if raw[0] != URLFormatVersion {
		return URLReading{}, fmt.Errorf("url: %w: %02X", ErrUnknownVersion, raw[0])
	}
	level := strings.IndexByte(urlAlphabet, body[8])
	if level < 0 {
		return URLReading{}, fmt.Errorf("url: invalid battery character %q", body[8])
	}

	temp := float64(raw[2]&0x7F) + float64(raw[3])/100
	if raw[2]&0x80 != 0 {
		temp = -temp
	}
	pressure := float64(binary.BigEndian.Uint16(raw[4:6])) + urlPressureOffset
	return URLReading{
		Temperature: temp,
		Humidity:    float64(raw[1]) / 2,
		Pressure:    pressure / 100,
		Battery:     float64(batteryBase+level*batteryStep) / 1000,
	}, nil
}
