// Package power reads the current power source from the kernel's
// power_supply class. It reports raw truth on every call; debouncing of
// transient plug/unplug noise happens in the controller.
package power

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/tdpctl/internal/errors"
)

const defaultSysfsPath = "/sys/class/power_supply"

// Source is the sensed power source.
type Source string

const (
	SourceAC      Source = "ac"
	SourceBattery Source = "battery"
	SourceUnknown Source = "unknown"
)

// Sensor samples the platform power source indicator.
type Sensor interface {
	// Sample returns the current power source. It has no side effects
	// and returns SourceUnknown when the indicator cannot be read.
	Sample() Source
}

// CapacityReader reports the battery charge percentage for display.
type CapacityReader interface {
	Capacity() (int, error)
}

// SysfsSensor reads power supply state from a sysfs tree.
type SysfsSensor struct {
	basePath string
}

// NewSensor returns a Sensor backed by the default sysfs path.
func NewSensor() *SysfsSensor {
	return NewSensorAt(defaultSysfsPath)
}

// NewSensorAt returns a Sensor rooted at basePath. Tests use this to
// point the sensor at a fixture tree.
func NewSensorAt(basePath string) *SysfsSensor {
	return &SysfsSensor{basePath: basePath}
}

// Sample determines the power source from the "online" flag of
// Mains-type supplies. Only the boolean drives the result; battery
// capacity is display-only.
func (s *SysfsSensor) Sample() Source {
	supplies, err := os.ReadDir(s.basePath)
	if err != nil {
		return SourceUnknown
	}

	foundMains := false
	for _, supply := range supplies {
		dir := filepath.Join(s.basePath, supply.Name())
		if readString(filepath.Join(dir, "type")) != "Mains" {
			continue
		}

		online, err := readInt(filepath.Join(dir, "online"))
		if err != nil {
			continue
		}

		foundMains = true
		if online == 1 {
			return SourceAC
		}
	}

	if foundMains {
		return SourceBattery
	}

	return SourceUnknown
}

// Capacity returns the charge percentage of the first Battery-type
// supply.
func (s *SysfsSensor) Capacity() (int, error) {
	errFactory := errors.New()

	supplies, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, errFactory.Wrap(ErrNoSupply, err)
	}

	for _, supply := range supplies {
		dir := filepath.Join(s.basePath, supply.Name())
		if readString(filepath.Join(dir, "type")) != "Battery" {
			continue
		}

		capacity, err := readInt(filepath.Join(dir, "capacity"))
		if err != nil {
			return 0, errFactory.Wrap(ErrReadCapacity, err)
		}

		return capacity, nil
	}

	return 0, errFactory.New(ErrNoSupply)
}

func readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

func readInt(path string) (int, error) {
	s := readString(path)
	if s == "" {
		return 0, os.ErrNotExist
	}

	return strconv.Atoi(s)
}
