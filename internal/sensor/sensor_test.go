package sensor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const (
	slaveReady    = "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"
	slaveNotReady = "72 01 4b 46 7f ff 0e 10 57 : crc=57 NO\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"
)

func writeDevice(t *testing.T, dir, id, contents string) {
	t.Helper()
	devDir := filepath.Join(dir, id)
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(devDir, "w1_slave"), []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestNewW1BusLoadsModules(t *testing.T) {
	loader := &FakeLoader{}
	if _, err := NewW1Bus(t.TempDir(), loader); err != nil {
		t.Fatalf("NewW1Bus: %v", err)
	}
	if len(loader.Loaded) != 2 || loader.Loaded[0] != "w1-gpio" || loader.Loaded[1] != "w1-therm" {
		t.Errorf("loaded modules: got %v, want [w1-gpio w1-therm]", loader.Loaded)
	}
}

func TestNewW1BusModuleFailure(t *testing.T) {
	loader := &FakeLoader{Err: errors.New("modprobe: not permitted")}
	_, err := NewW1Bus(t.TempDir(), loader)
	if !errors.Is(err, ErrBusUnavailable) {
		t.Errorf("expected ErrBusUnavailable, got %v", err)
	}
}

func TestNewW1BusMissingDir(t *testing.T) {
	_, err := NewW1Bus(filepath.Join(t.TempDir(), "nope"), nil)
	if !errors.Is(err, ErrBusUnavailable) {
		t.Errorf("expected ErrBusUnavailable, got %v", err)
	}
}

func TestW1BusEnumerateSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0316a2795bff", slaveReady)
	writeDevice(t, dir, "28-0000075a1c3e", slaveReady)
	writeDevice(t, dir, "10-000802b4a1d2", slaveReady)
	if err := os.MkdirAll(filepath.Join(dir, "w1_bus_master1"), 0o755); err != nil {
		t.Fatal(err)
	}

	bus, err := NewW1Bus(dir, nil)
	if err != nil {
		t.Fatalf("NewW1Bus: %v", err)
	}
	ids, err := bus.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	want := []string{"10-000802b4a1d2", "28-0000075a1c3e", "28-0316a2795bff"}
	if len(ids) != len(want) {
		t.Fatalf("ids: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d]: got %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestW1BusRead(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0000075a1c3e", slaveReady)
	bus, _ := NewW1Bus(dir, nil)

	c, ok, err := bus.Read("28-0000075a1c3e")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatal("expected ready reading")
	}
	if c != 23.125 {
		t.Errorf("temperature: got %v, want 23.125", c)
	}
}

func TestW1BusReadNotReady(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0000075a1c3e", slaveNotReady)
	bus, _ := NewW1Bus(dir, nil)

	c, ok, err := bus.Read("28-0000075a1c3e")
	if err != nil {
		t.Fatalf("not ready must not be an error, got %v", err)
	}
	if ok {
		t.Errorf("expected ok=false, got temperature %v", c)
	}
}

func TestW1BusReadDeviceUnplugged(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-0000075a1c3e", slaveReady)
	bus, _ := NewW1Bus(dir, nil)
	th, err := Open(bus, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := os.RemoveAll(filepath.Join(dir, "28-0000075a1c3e")); err != nil {
		t.Fatal(err)
	}

	_, _, err = th.Read()
	if !errors.Is(err, ErrDeviceMissing) {
		t.Errorf("expected ErrDeviceMissing, got %v", err)
	}
}

func TestParseW1Slave(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    float64
		ok      bool
		wantErr error
	}{
		{name: "ready", in: slaveReady, want: 23.125, ok: true},
		{name: "negative", in: "ff ff : crc=aa YES\nff ff t=-10250\n", want: -10.25, ok: true},
		{name: "boiling", in: "a1 : crc=12 YES\na1 t=99937\n", want: 99.937, ok: true},
		{name: "not ready", in: slaveNotReady},
		{name: "empty", in: ""},
		{name: "missing second line", in: "aa : crc=aa YES\n", wantErr: ErrBadReading},
		{name: "no t field", in: "aa : crc=aa YES\naa bb cc\n", wantErr: ErrBadReading},
		{name: "garbage t field", in: "aa : crc=aa YES\naa t=12x\n", wantErr: ErrBadReading},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := parseW1Slave([]byte(tc.in))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err: got %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.ok {
				t.Errorf("ok: got %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Errorf("temperature: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOpenSelectsFirstLexicographically(t *testing.T) {
	bus := &FakeBus{IDs: []string{"28-b", "28-a", "28-c"}}
	th, err := Open(bus, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if th.ID() != "28-a" {
		t.Errorf("ID: got %q, want 28-a", th.ID())
	}
}

func TestOpenExplicitID(t *testing.T) {
	bus := &FakeBus{IDs: []string{"28-a", "28-b"}}
	th, err := Open(bus, "28-b")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if th.ID() != "28-b" {
		t.Errorf("ID: got %q, want 28-b", th.ID())
	}
}

func TestOpenUnknownID(t *testing.T) {
	bus := &FakeBus{IDs: []string{"28-a"}}
	_, err := Open(bus, "28-z")
	if !errors.Is(err, ErrNoneFound) {
		t.Errorf("expected ErrNoneFound, got %v", err)
	}
}

func TestOpenNoneFound(t *testing.T) {
	_, err := Open(&FakeBus{}, "")
	if !errors.Is(err, ErrNoneFound) {
		t.Errorf("expected ErrNoneFound, got %v", err)
	}
}

func TestOpenEnumerateError(t *testing.T) {
	bus := &FakeBus{EnumerateError: ErrBusUnavailable}
	_, err := Open(bus, "")
	if !errors.Is(err, ErrBusUnavailable) {
		t.Errorf("expected ErrBusUnavailable, got %v", err)
	}
}

func TestFakeBusSamplesRepeatLast(t *testing.T) {
	bus := NewFakeBus([]Reading{{Celsius: 20, Ready: true}, {Ready: false}, {Celsius: 90, Ready: true}})
	id := bus.IDs[0]

	wants := []Reading{{20, true}, {0, false}, {90, true}, {90, true}}
	for i, want := range wants {
		c, ok, err := bus.Read(id)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if ok != want.Ready || (ok && c != want.Celsius) {
			t.Errorf("read %d: got (%v, %v), want (%v, %v)", i, c, ok, want.Celsius, want.Ready)
		}
	}
	if bus.Reads != 4 {
		t.Errorf("Reads: got %d, want 4", bus.Reads)
	}
}

func TestFakeBusUnknownID(t *testing.T) {
	bus := NewFakeBus([]Reading{{Celsius: 20, Ready: true}})
	_, _, err := bus.Read("28-unknown")
	if !errors.Is(err, ErrDeviceMissing) {
		t.Errorf("expected ErrDeviceMissing, got %v", err)
	}
}
