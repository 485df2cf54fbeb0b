package health

import (
	"errors"
	"strings"
	"testing"
)

func TestReport_StepsKeepOrder(t *testing.T) {
	r := NewReport()
	errBLE := errors.New("adapter missing")
	r.Record("sensors", false, nil)
	r.Record("ble", true, errBLE)
	r.Record("timer", true, nil)

	steps := r.Steps()
	if len(steps) != 3 {
		t.Fatalf("len(Steps()) = %d; want 3", len(steps))
	}
	names := []string{steps[0].Name, steps[1].Name, steps[2].Name}
	if strings.Join(names, ",") != "sensors,ble,timer" {
		t.Errorf("order = %v; want sensors,ble,timer", names)
	}
	if steps[1].OK() {
		t.Error("ble step OK() = true; want false")
	}
	if r.OK() {
		t.Error("OK() = true; want false")
	}
	if !r.Fatal() {
		t.Error("Fatal() = false; want true")
	}
	if err := r.Err(); !errors.Is(err, errBLE) {
		t.Errorf("Err() = %v; want wrapping %v", err, errBLE)
	}
}

func TestReport_NonCriticalFailureIsNotFatal(t *testing.T) {
	r := NewReport()
	r.Record("log", false, errors.New("no uart"))
	r.Record("ble", true, nil)

	if r.OK() {
		t.Error("OK() = true; want false")
	}
	if r.Fatal() {
		t.Error("Fatal() = true; want false")
	}
	if err := r.Err(); err == nil || !strings.Contains(err.Error(), "log: no uart") {
		t.Errorf("Err() = %v; want containing %q", err, "log: no uart")
	}
}

func TestReport_EmptyIsHealthy(t *testing.T) {
	r := NewReport()
	if !r.OK() || r.Fatal() || r.Err() != nil {
		t.Errorf("empty report: OK=%v Fatal=%v Err=%v", r.OK(), r.Fatal(), r.Err())
	}
}

func TestReport_Fail(t *testing.T) {
	r := NewReport()
	first := errors.New("first")
	last := errors.New("last")
	r.Fail("timer.start", first)
	r.Fail("timer.start", nil)
	r.Fail("timer.start", last)
	r.Fail("ble.interval", first)

	got := r.Failures()
	if got["timer.start"].Count != 2 {
		t.Errorf("timer.start count = %d; want 2", got["timer.start"].Count)
	}
	if got["timer.start"].LastErr != last {
		t.Errorf("timer.start last = %v; want %v", got["timer.start"].LastErr, last)
	}
	if got["ble.interval"].Count != 1 {
		t.Errorf("ble.interval count = %d; want 1", got["ble.interval"].Count)
	}
	if !r.OK() {
		t.Error("runtime failures must not affect boot health")
	}
}
