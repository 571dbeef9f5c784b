// Package save implements JSON serialization and deserialization of fact sheets.
package save

import (
	"encoding/json"
	"fmt"

	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/engine/state"
)

// FormatVersion is written into every save file.
const FormatVersion = 1

// SaveData is the JSON-serializable save format.
type SaveData struct {
	Format  int                `json:"format"`
	Ruleset string             `json:"ruleset"`
	Version string             `json:"version"`
	Flags   map[string]bool    `json:"flags"`
	Values  map[string]float64 `json:"values"`
	Labels  map[string]string  `json:"labels"`
	History []string           `json:"history,omitempty"`
}

// Save serializes the fact sheet to JSON bytes. History is the inspector
// command log, kept for replay.
func Save(facts *state.FactSheet, defs *registry.Defs, history []string) ([]byte, error) {
	snap := facts.Snapshot()
	data := SaveData{
		Format:  FormatVersion,
		Flags:   snap.Flags,
		Values:  snap.Values,
		Labels:  snap.Labels,
		History: history,
	}
	if defs != nil {
		data.Ruleset = defs.Meta.Title
		data.Version = defs.Meta.Version
	}
	return json.MarshalIndent(data, "", "  ")
}

// Load deserializes JSON bytes into SaveData.
func Load(data []byte) (*SaveData, error) {
	var sd SaveData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, err
	}
	if sd.Format > FormatVersion {
		return nil, fmt.Errorf("save format %d is newer than supported %d", sd.Format, FormatVersion)
	}
	// Ensure maps are never nil after load.
	if sd.Flags == nil {
		sd.Flags = map[string]bool{}
	}
	if sd.Values == nil {
		sd.Values = map[string]float64{}
	}
	if sd.Labels == nil {
		sd.Labels = map[string]string{}
	}
	return &sd, nil
}

// ApplySave replaces the facts in the sheet with the loaded ones.
func ApplySave(facts *state.FactSheet, sd *SaveData) {
	facts.Restore(state.Snapshot{
		Flags:  sd.Flags,
		Values: sd.Values,
		Labels: sd.Labels,
	})
}
