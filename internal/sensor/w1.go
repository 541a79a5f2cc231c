package sensor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultDevicesDir is where the w1 subsystem exposes slave devices.
const DefaultDevicesDir = "/sys/bus/w1/devices"

// KernelModules are loaded before the bus is used.
var KernelModules = []string{"w1-gpio", "w1-therm"}

// thermometerFamilies are w1 family codes of thermometers that expose the
// w1_slave text format (DS18S20, DS1822, DS18B20, DS1825, DS28EA00).
var thermometerFamilies = []string{"10-", "22-", "28-", "3b-", "42-"}

// ModuleLoader activates kernel modules.
type ModuleLoader interface {
	Load(name string) error
}

// Modprobe loads kernel modules with modprobe(8).
type Modprobe struct {
	Timeout time.Duration
}

// Load runs modprobe for the named module.
func (m Modprobe) Load(name string) error {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "modprobe", name).CombinedOutput()
	if err != nil {
		return fmt.Errorf("modprobe %s: %w (%s)", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// W1Bus reads thermometers through the w1 sysfs directory.
type W1Bus struct {
	dir string
}

// NewW1Bus loads the one-wire kernel modules and checks that dir exists.
// A nil loader skips module loading.
func NewW1Bus(dir string, loader ModuleLoader) (*W1Bus, error) {
	if dir == "" {
		dir = DefaultDevicesDir
	}
	if loader != nil {
		for _, mod := range KernelModules {
			if err := loader.Load(mod); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBusUnavailable, err)
			}
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrBusUnavailable, dir)
	}
	return &W1Bus{dir: dir}, nil
}

// Enumerate lists attached thermometers, sorted.
func (b *W1Bus) Enumerate() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}

	var ids []string
	for _, e := range entries {
		if isThermometer(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Read parses the device's w1_slave file.
func (b *W1Bus) Read(id string) (float64, bool, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, id, "w1_slave"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, fmt.Errorf("%s: %w", id, ErrDeviceMissing)
		}
		return 0, false, fmt.Errorf("read %s: %w", id, err)
	}
	return parseW1Slave(data)
}

func isThermometer(name string) bool {
	for _, prefix := range thermometerFamilies {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// parseW1Slave decodes the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(data []byte) (float64, bool, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return 0, false, nil
	}

	fields := strings.Fields(lines[0])
	if fields[len(fields)-1] != "YES" {
		return 0, false, nil
	}
	if len(lines) < 2 {
		return 0, false, fmt.Errorf("%w: missing temperature line", ErrBadReading)
	}

	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, false, fmt.Errorf("%w: no t= field in %q", ErrBadReading, lines[1])
	}
	milli, err := strconv.Atoi(lines[1][idx+2:])
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrBadReading, err)
	}
	return float64(milli) / 1000.0, true, nil
}
