package ble

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"tinygo.org/x/bluetooth"

	"cloudpico-tag/internal/payload"
)

func rawBroadcast() payload.Broadcast {
	return payload.Raw(payload.EncodeRaw4Accel(payload.AccelerationSample{X: 1, Y: 2, Z: 3}, 4))
}

func urlBroadcast() payload.Broadcast {
	return payload.URL(payload.EncodeURL(payload.SensorReading{
		Temperature: 2150, Pressure: 101325, Humidity: 4500, Battery: 3000,
	}, payload.URLBase))
}

func TestAdvertisementOptions_Raw(t *testing.T) {
	b := rawBroadcast()
	opts, err := AdvertisementOptions(b, "Ruuvi", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("AdvertisementOptions() error = %v", err)
	}
	if opts.AdvertisementType != bluetooth.AdvertisingTypeNonConnInd {
		t.Errorf("AdvertisementType = %v, want non-connectable", opts.AdvertisementType)
	}
	if opts.LocalName != "Ruuvi" {
		t.Errorf("LocalName = %q", opts.LocalName)
	}
	if opts.Interval != bluetooth.NewDuration(100*time.Millisecond) {
		t.Errorf("Interval = %v", opts.Interval)
	}
	if len(opts.ManufacturerData) != 1 || len(opts.ServiceData) != 0 {
		t.Fatalf("sections = %d mfg, %d svc; want 1, 0", len(opts.ManufacturerData), len(opts.ServiceData))
	}
	md := opts.ManufacturerData[0]
	if md.CompanyID != CompanyID || !bytes.Equal(md.Data, b.Data) {
		t.Errorf("manufacturer data = %#04x % X", md.CompanyID, md.Data)
	}

	// Options must not alias the caller's buffer.
	b.Data[0] ^= 0xFF
	if md.Data[0] == b.Data[0] {
		t.Error("manufacturer data aliases broadcast buffer")
	}
}

func TestAdvertisementOptions_URL(t *testing.T) {
	b := urlBroadcast()
	opts, err := AdvertisementOptions(b, "", time.Second)
	if err != nil {
		t.Fatalf("AdvertisementOptions() error = %v", err)
	}
	if len(opts.ServiceData) != 1 || len(opts.ManufacturerData) != 0 {
		t.Fatalf("sections = %d mfg, %d svc; want 0, 1", len(opts.ManufacturerData), len(opts.ServiceData))
	}
	sd := opts.ServiceData[0]
	if sd.UUID != bluetooth.New16BitUUID(EddystoneUUID) {
		t.Errorf("UUID = %v, want FEAA", sd.UUID)
	}
	want := append([]byte{0x10, 0x04}, b.Data...)
	if !bytes.Equal(sd.Data, want) {
		t.Errorf("service data = % X, want % X", sd.Data, want)
	}
}

func TestAdvertisementOptions_Invalid(t *testing.T) {
	tests := []payload.Broadcast{
		{},
		{Format: payload.FormatRaw4Accel, Data: make([]byte, 10)},
		{Format: payload.Format(9), Data: make([]byte, 24)},
	}
	for _, b := range tests {
		if _, err := AdvertisementOptions(b, "", time.Second); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("AdvertisementOptions(%s/%d) error = %v, want ErrUnknownFormat", b.Format, len(b.Data), err)
		}
	}
}

func TestParseEddystoneURL(t *testing.T) {
	got, err := ParseEddystoneURL([]byte{0x10, 0x04, 0x03, 'r'})
	if err != nil || !bytes.Equal(got, []byte{0x03, 'r'}) {
		t.Errorf("ParseEddystoneURL = % X, %v", got, err)
	}
	for _, in := range [][]byte{nil, {0x10}, {0x00, 0x04, 0x03}} {
		if _, err := ParseEddystoneURL(in); !errors.Is(err, ErrNotEddystone) {
			t.Errorf("ParseEddystoneURL(% X) error = %v, want ErrNotEddystone", in, err)
		}
	}
}

func TestClassify(t *testing.T) {
	raw := rawBroadcast()
	url := urlBroadcast()
	eddy := bluetooth.New16BitUUID(EddystoneUUID)

	tests := []struct {
		name   string
		mfg    []bluetooth.ManufacturerDataElement
		svc    []bluetooth.ServiceDataElement
		want   payload.Format
		wantOK bool
	}{
		{
			name:   "raw",
			mfg:    []bluetooth.ManufacturerDataElement{{CompanyID: CompanyID, Data: raw.Data}},
			want:   payload.FormatRaw4Accel,
			wantOK: true,
		},
		{
			name:   "url",
			svc:    []bluetooth.ServiceDataElement{{UUID: eddy, Data: EddystoneURL(url.Data)}},
			want:   payload.FormatURL,
			wantOK: true,
		},
		{
			name: "other company",
			mfg:  []bluetooth.ManufacturerDataElement{{CompanyID: 0xFFFF, Data: raw.Data}},
		},
		{
			name: "short raw",
			mfg:  []bluetooth.ManufacturerDataElement{{CompanyID: CompanyID, Data: raw.Data[:10]}},
		},
		{
			name: "other service",
			svc:  []bluetooth.ServiceDataElement{{UUID: bluetooth.New16BitUUID(0x180F), Data: EddystoneURL(url.Data)}},
		},
		{
			name: "eddystone uid frame",
			svc:  []bluetooth.ServiceDataElement{{UUID: eddy, Data: append([]byte{0x00, 0x04}, url.Data...)}},
		},
		{
			name:   "raw preferred",
			mfg:    []bluetooth.ManufacturerDataElement{{CompanyID: CompanyID, Data: raw.Data}},
			svc:    []bluetooth.ServiceDataElement{{UUID: eddy, Data: EddystoneURL(url.Data)}},
			want:   payload.FormatRaw4Accel,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.mfg, tt.svc)
			if ok != tt.wantOK {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Format != tt.want {
				t.Errorf("Format = %s, want %s", got.Format, tt.want)
			}
			if ok && len(got.Data) != tt.want.Length() {
				t.Errorf("len(Data) = %d, want %d", len(got.Data), tt.want.Length())
			}
		})
	}
}

func TestLogSink(t *testing.T) {
	s := &LogSink{}
	if err := s.SetAdvertisingInterval(time.Second); err != nil {
		t.Fatal(err)
	}
	b := urlBroadcast()
	if err := s.SetPayload(b); err != nil {
		t.Fatal(err)
	}
	b.Data[0] = 0
	last, n := s.Last()
	if n != 1 || last.Format != payload.FormatURL || last.Data[0] != 0x03 {
		t.Errorf("Last() = %s % X, %d", last.Format, last.Data, n)
	}
	if s.Interval() != time.Second {
		t.Errorf("Interval() = %v, want 1s", s.Interval())
	}
}
