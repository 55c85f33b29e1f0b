package power_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/tdpctl/internal/power"
)

func writeSupply(t *testing.T, base, name string, files map[string]string) {
	t.Helper()

	dir := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for file, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content+"\n"), 0o644))
	}
}

func TestSampleOnAC(t *testing.T) {
	base := t.TempDir()
	writeSupply(t, base, "ADP1", map[string]string{"type": "Mains", "online": "1"})
	writeSupply(t, base, "BAT0", map[string]string{"type": "Battery", "capacity": "80"})

	assert.Equal(t, power.SourceAC, power.NewSensorAt(base).Sample())
}

func TestSampleOnBattery(t *testing.T) {
	base := t.TempDir()
	writeSupply(t, base, "ADP1", map[string]string{"type": "Mains", "online": "0"})
	writeSupply(t, base, "BAT0", map[string]string{"type": "Battery", "capacity": "47"})

	assert.Equal(t, power.SourceBattery, power.NewSensorAt(base).Sample())
}

func TestSampleWithoutMainsSupply(t *testing.T) {
	base := t.TempDir()
	writeSupply(t, base, "BAT0", map[string]string{"type": "Battery", "capacity": "47"})

	assert.Equal(t, power.SourceUnknown, power.NewSensorAt(base).Sample())
}

func TestSampleUnreadablePath(t *testing.T) {
	assert.Equal(t, power.SourceUnknown,
		power.NewSensorAt(filepath.Join(t.TempDir(), "missing")).Sample())
}

func TestSampleIgnoresMainsWithoutOnlineFlag(t *testing.T) {
	base := t.TempDir()
	writeSupply(t, base, "ADP1", map[string]string{"type": "Mains"})
	writeSupply(t, base, "ucsi-source-psy-1", map[string]string{"type": "Mains", "online": "1"})

	assert.Equal(t, power.SourceAC, power.NewSensorAt(base).Sample())
}

func TestCapacity(t *testing.T) {
	base := t.TempDir()
	writeSupply(t, base, "ADP1", map[string]string{"type": "Mains", "online": "1"})
	writeSupply(t, base, "BAT0", map[string]string{"type": "Battery", "capacity": "63"})

	capacity, err := power.NewSensorAt(base).Capacity()
	require.NoError(t, err)
	assert.Equal(t, 63, capacity)
}

func TestCapacityWithoutBattery(t *testing.T) {
	base := t.TempDir()
	writeSupply(t, base, "ADP1", map[string]string{"type": "Mains", "online": "1"})

	_, err := power.NewSensorAt(base).Capacity()
	require.Error(t, err)
}
