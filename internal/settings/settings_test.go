package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ambient-history-cache/internal/weather"
)

func TestGet_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "settings.json")
	s := NewFileStore(path)

	got, err := s.Get()
	require.NoError(t, err)
	require.Len(t, got.Sensors, 8)
	assert.Equal(t, Sensor{ID: 3, Name: "Sensor 3", Enabled: true}, got.Sensors[2])

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, got.EnabledIDs())
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewFileStore(path)

	next := Defaults()
	next.Sensors[0].Name = "Kitchen"
	next.Sensors[1].Enabled = false
	_, err := s.Save(next)
	require.NoError(t, err)

	got, err := NewFileStore(path).Get()
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", got.Sensors[0].Name)
	assert.NotContains(t, got.EnabledIDs(), 2)
}

func TestSave_Rejects(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "settings.json"))

	dup := Defaults()
	dup.Sensors[1].ID = 1

	outOfRange := Defaults()
	outOfRange.Sensors[7].ID = 9

	unnamed := Defaults()
	unnamed.Sensors[0].Name = ""

	for name, bad := range map[string]Settings{
		"duplicate id": dup,
		"id range":     outOfRange,
		"empty name":   unnamed,
		"no sensors":   {},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Save(bad)
			assert.ErrorIs(t, err, weather.ErrInvalidArgument)
		})
	}
}

func TestGet_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := NewFileStore(path).Get()
	assert.True(t, weather.IsStorageError(err))
}
