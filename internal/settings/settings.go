// Package settings persists the user's sensor naming and visibility.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/ambient-history-cache/internal/common"
	"github.com/i474232898/ambient-history-cache/internal/weather"
)

type Sensor struct {
	ID      int    `json:"id" validate:"min=1,max=8"`
	Name    string `json:"name" validate:"required,max=64"`
	Enabled bool   `json:"enabled"`
}

type Settings struct {
	Sensors []Sensor `json:"sensors" validate:"required,min=1,max=8,unique=ID,dive"`
}

// EnabledIDs returns the ids of enabled sensors in declaration order.
func (s Settings) EnabledIDs() []int {
	ids := make([]int, 0, len(s.Sensors))
	for _, sensor := range s.Sensors {
		if sensor.Enabled {
			ids = append(ids, sensor.ID)
		}
	}
	return ids
}

// Defaults returns one enabled "Sensor N" entry per channel.
func Defaults() Settings {
	sensors := make([]Sensor, weather.NumSensors)
	for i := range sensors {
		sensors[i] = Sensor{ID: i + 1, Name: fmt.Sprintf("Sensor %d", i+1), Enabled: true}
	}
	return Settings{Sensors: sensors}
}

// FileStore keeps settings in a small JSON document.
type FileStore struct {
	mu       sync.Mutex
	path     string
	validate *validator.Validate
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, validate: validator.New()}
}

// Get returns the stored settings, writing the defaults on first use.
func (s *FileStore) Get() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", s.path).Msg("settings file not found, writing defaults")
		def := Defaults()
		if err := s.write(def); err != nil {
			return Settings{}, err
		}
		return def, nil
	}
	if err != nil {
		return Settings{}, &weather.StorageError{Op: "read", Path: s.path, Err: err}
	}

	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return Settings{}, &weather.StorageError{Op: "decode", Path: s.path, Err: err}
	}
	return out, nil
}

// Save validates and persists next. Invalid input wraps
// weather.ErrInvalidArgument.
func (s *FileStore) Save(next Settings) (Settings, error) {
	if err := s.validate.Struct(next); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", weather.ErrInvalidArgument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(next); err != nil {
		return Settings{}, err
	}
	return next, nil
}

func (s *FileStore) write(v Settings) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &weather.StorageError{Op: "encode", Path: s.path, Err: err}
	}
	if err := common.WriteFileAtomic(s.path, data); err != nil {
		return &weather.StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
