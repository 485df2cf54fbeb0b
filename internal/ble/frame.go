// Package ble carries tag broadcasts over Bluetooth LE advertisements.
//
// Raw4Accel payloads ride in manufacturer specific data under the Ruuvi
// company identifier. URL payloads ride in an Eddystone-URL service data
// frame: [0x10, tx power, url...].
package ble

import (
	"errors"
	"fmt"
	"time"

	"tinygo.org/x/bluetooth"

	"cloudpico-tag/internal/payload"
)

const (
	// CompanyID is the Bluetooth SIG identifier of Ruuvi Innovations.
	CompanyID uint16 = 0x0499
	// EddystoneUUID is the 16-bit service UUID Eddystone frames use.
	EddystoneUUID uint16 = 0xFEAA
	// TxPower is the calibrated power at 0 m reported in Eddystone frames (dBm).
	TxPower int8 = 4

	eddystoneURLFrame = 0x10
	eddystoneHeader   = 2
)

var (
	ErrUnknownFormat = errors.New("unknown broadcast format")
	ErrNotEddystone  = errors.New("not an eddystone-url frame")
)

var eddystoneService = bluetooth.New16BitUUID(EddystoneUUID)

// EddystoneURL wraps an encoded URL payload in the Eddystone-URL frame header.
func EddystoneURL(url []byte) []byte {
	out := make([]byte, 0, eddystoneHeader+len(url))
	out = append(out, eddystoneURLFrame, byte(TxPower))
	return append(out, url...)
}

// ParseEddystoneURL strips the Eddystone-URL header and returns the URL bytes.
func ParseEddystoneURL(frame []byte) ([]byte, error) {
	if len(frame) < eddystoneHeader || frame[0] != eddystoneURLFrame {
		return nil, ErrNotEddystone
	}
	return append([]byte(nil), frame[eddystoneHeader:]...), nil
}

// AdvertisementOptions builds non-connectable advertising options carrying b.
func AdvertisementOptions(b payload.Broadcast, localName string, interval time.Duration) (bluetooth.AdvertisementOptions, error) {
	if want := b.Format.Length(); want == 0 || len(b.Data) != want {
		return bluetooth.AdvertisementOptions{}, fmt.Errorf("%w: %s with %d bytes", ErrUnknownFormat, b.Format, len(b.Data))
	}
	opts := bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeNonConnInd,
		LocalName:         localName,
		Interval:          bluetooth.NewDuration(interval),
	}
	switch b.Format {
	case payload.FormatRaw4Accel:
		opts.ManufacturerData = []bluetooth.ManufacturerDataElement{
			{CompanyID: CompanyID, Data: append([]byte(nil), b.Data...)},
		}
	case payload.FormatURL:
		opts.ServiceUUIDs = []bluetooth.UUID{eddystoneService}
		opts.ServiceData = []bluetooth.ServiceDataElement{
			{UUID: eddystoneService, Data: EddystoneURL(b.Data)},
		}
	}
	return opts, nil
}

// Classify picks the tag broadcast out of the data sections of one
// advertisement. Manufacturer data wins when both are present.
func Classify(mfg []bluetooth.ManufacturerDataElement, svc []bluetooth.ServiceDataElement) (payload.Broadcast, bool) {
	for _, md := range mfg {
		if md.CompanyID == CompanyID && len(md.Data) == payload.RawDataLength {
			return payload.Broadcast{
				Format: payload.FormatRaw4Accel,
				Data:   append([]byte(nil), md.Data...),
			}, true
		}
	}
	for _, sd := range svc {
		if sd.UUID != eddystoneService {
			continue
		}
		url, err := ParseEddystoneURL(sd.Data)
		if err != nil || len(url) != payload.URLPayloadLength {
			continue
		}
		return payload.Broadcast{Format: payload.FormatURL, Data: url}, true
	}
	return payload.Broadcast{}, false
}
