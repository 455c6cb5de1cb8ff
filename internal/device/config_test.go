package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

const sampleFile = `
home:
  mac: "00-03-50-12-34-56"
  light:
    kitchen:
      where: "0101"
      name: Kitchen
      dimmable: true
    hall:
      where: "12"
      bus_interface: "01"
      name: Hall
    upstairs:
      where: "#05"
      name: Upstairs group
  switch:
    socket:
      where: "0203"
      name: Socket
      class: outlet
  cover:
    living:
      where: "41"
      name: Living shutter
      opening_time: 20
      closing_time: 18
  binary_sensor:
    door:
      where: "9999"
      name: Front door
      class: door
      inverted: true
  sensor:
    meter:
      where: "51"
      name: Main meter
      class: power
    probe:
      where: "500"
      name: Outdoor
      class: temperature
  climate:
    bedroom:
      zone: "3"
      central: true
    central:
      manufacturer: Legrand
`

func TestParse(t *testing.T) {
	file, err := Parse([]byte(sampleFile))
	require.NoError(t, err)

	devices := file.Devices("00:03:50:12:34:56")
	keys := make([]openwebnet.Key, 0, len(devices))
	byKey := make(map[openwebnet.Key]Config)
	for _, d := range devices {
		keys = append(keys, d.Key)
		byKey[d.Key] = d
	}

	assert.Equal(t, []openwebnet.Key{
		"1-#5", "1-0101", "1-0203", "1-12#4#01",
		"14-0101", "14-0203", "14-12#4#01", "14-41",
		"18-51", "2-41", "25-9999", "4-0", "4-3", "4-500",
	}, keys)

	kitchen := byKey["1-0101"]
	assert.Equal(t, "kitchen", kitchen.ID)
	assert.Equal(t, PlatformLight, kitchen.Platform)
	assert.True(t, kitchen.Dimmable)
	assert.Equal(t, DefaultManufacturer, kitchen.Manufacturer)
	assert.Equal(t, "12#4#01", byKey["1-12#4#01"].FullWhere())
	assert.Equal(t, "#5", byKey["1-#5"].Where)

	assert.Equal(t, SwitchClassOutlet, byKey["1-0203"].Class)
	assert.Equal(t, 2, byKey["2-41"].Who)
	assert.InDelta(t, 20.0, byKey["2-41"].OpeningTime, 0.001)
	assert.True(t, byKey["25-9999"].Inverted)
	assert.Equal(t, 18, byKey["18-51"].Who)
	assert.Equal(t, 4, byKey["4-500"].Who)

	assert.Equal(t, "Zone 3", byKey["4-3"].Name)
	assert.True(t, byKey["4-3"].CanHeat())
	assert.Equal(t, "Central unit", byKey["4-0"].Name)
	assert.Equal(t, "Legrand", byKey["4-0"].Manufacturer)
}

func TestParseCollectsErrors(t *testing.T) {
	data := `
bad_mac:
  mac: "not-a-mac"
home:
  mac: "00:03:50:12:34:56"
  light:
    wrong_where:
      where: "0199"
      name: Wrong
    no_name:
      where: "11"
    first:
      where: "21"
      name: First
  switch:
    same_key:
      where: "21"
      name: Duplicate of first
  sensor:
    mismatch:
      who: 4
      where: "51"
      name: Meter
      class: power
    unknown_class:
      where: "52"
      name: Meter
      class: voltage
`
	_, err := Parse([]byte(data))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrInvalidMAC)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.ErrorIs(t, err, ErrDeviceExists)
	assert.ErrorIs(t, err, ErrInvalidDevice)

	for _, want := range []string{"bad_mac", "wrong_where", "no_name", "same_key", "mismatch", "unknown_class"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("home: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "myhome.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	file, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, file.Devices("000350123456"), 14)
	assert.Empty(t, file.Devices("00:03:50:ff:ff:ff"))
	assert.Empty(t, file.Devices("garbage"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"00:03:50:12:34:56", "00:03:50:12:34:56", false},
		{"00-03-50-AB-CD-EF", "00:03:50:ab:cd:ef", false},
		{"0003.50ab.cdef", "00:03:50:ab:cd:ef", false},
		{"000350ABCDEF", "00:03:50:ab:cd:ef", false},
		{"00:03:50:12:34", "", true},
		{"00:03:50:12:34:5G", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeMAC(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMAC)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateActuatorWhere(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"00", "00", false},
		{"5", "5", false},
		{"10", "10", false},
		{"#1", "#1", false},
		{"#005", "#5", false},
		{"#255", "#255", false},
		{"#256", "", true},
		{"#0", "", true},
		{"#a", "", true},
		{"11", "11", false},
		{"0101", "0101", false},
		{"1015", "1015", false},
		{"1115", "", true},
		{"0116", "", true},
		{"123", "", true},
		{"12a", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateActuatorWhere(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePlatformRules(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantKey openwebnet.Key
		wantErr error
	}{
		{"light default who", Config{Platform: PlatformLight, Where: "0101", Name: "L"}, "1-0101", nil},
		{"light wrong who", Config{Platform: PlatformLight, Who: 2, Where: "0101", Name: "L"}, "", ErrInvalidDevice},
		{"bad interface", Config{Platform: PlatformLight, Where: "0101", Interface: "16", Name: "L"}, "", ErrInvalidAddress},
		{"switch bad class", Config{Platform: PlatformSwitch, Where: "11", Class: "fan", Name: "S"}, "", ErrInvalidDevice},
		{"cover negative travel", Config{Platform: PlatformCover, Where: "41", OpeningTime: -1, Name: "C"}, "", ErrInvalidDevice},
		{"binary sensor default who", Config{Platform: PlatformBinarySensor, Where: "9999", Name: "B"}, "25-9999", nil},
		{"binary sensor aux", Config{Platform: PlatformBinarySensor, Who: 9, Where: "3", Name: "B"}, "9-3", nil},
		{"binary sensor bad who", Config{Platform: PlatformBinarySensor, Who: 2, Where: "3", Name: "B"}, "", ErrInvalidDevice},
		{"binary sensor bad where", Config{Platform: PlatformBinarySensor, Where: "ab", Name: "B"}, "", ErrInvalidAddress},
		{"illuminance", Config{Platform: PlatformSensor, Class: SensorClassIlluminance, Where: "21", Name: "S"}, "1-21", nil},
		{"energy", Config{Platform: PlatformSensor, Class: SensorClassEnergy, Where: "52", Name: "S"}, "18-52", nil},
		{"climate bad zone", Config{Platform: PlatformClimate, Zone: "x"}, "", ErrInvalidAddress},
		{"unknown platform", Config{Platform: "fan", Where: "11", Name: "F"}, "", ErrInvalidPlatform},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := Normalize(&cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, cfg.Key)
		})
	}
}
