package config

import (
	"encoding/json"
	"fmt"
)

// SecretMask replaces the lock code in exported JSON.
const SecretMask = "***"

// ExportJSON renders s for the settings page. The lock code is replaced by
// SecretMask unless includeSecret is set.
func ExportJSON(s Snapshot, includeSecret bool) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if includeSecret {
		return data, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if lock, ok := doc["lock"].(map[string]any); ok {
		lock["code"] = SecretMask
	}
	return json.Marshal(doc)
}

// ImportJSON merges a partial JSON document onto base and validates the
// result. Fields absent from data keep their base values; a "map" array
// replaces the whole band table. A masked lock code leaves the code as is.
func ImportJSON(base Snapshot, data []byte) (Snapshot, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("parse config json: %w", err)
	}

	if raw, ok := doc["lock"]; ok {
		var lock map[string]json.RawMessage
		if err := json.Unmarshal(raw, &lock); err != nil {
			return Snapshot{}, fmt.Errorf("parse lock json: %w", err)
		}
		var code string
		if c, ok := lock["code"]; ok && json.Unmarshal(c, &code) == nil && code == SecretMask {
			delete(lock, "code")
			stripped, err := json.Marshal(lock)
			if err != nil {
				return Snapshot{}, fmt.Errorf("encode lock json: %w", err)
			}
			doc["lock"] = stripped
		}
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode config json: %w", err)
	}

	out := base.Clone()
	if err := json.Unmarshal(merged, &out); err != nil {
		return Snapshot{}, fmt.Errorf("apply config json: %w", err)
	}
	if len(out.Bands) > MaxBands {
		out.Bands = out.Bands[:MaxBands]
	}
	if err := out.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("invalid config: %w", err)
	}
	return out, nil
}
