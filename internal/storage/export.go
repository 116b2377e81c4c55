// ABOUTME: Export and import of routine data.
// ABOUTME: Supports JSON and YAML; media blobs are never exported.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harperreed/routines/internal/models"
	"gopkg.in/yaml.v3"
)

// ExportVersion is the current export file format version.
const ExportVersion = "1.0"

// ExportData represents the full export format for routine data.
type ExportData struct {
	Version    string            `json:"version" yaml:"version"`
	ExportedAt time.Time         `json:"exported_at" yaml:"exported_at"`
	Tool       string            `json:"tool" yaml:"tool"`
	Routines   []*models.Routine `json:"routines" yaml:"routines"`
	Pending    int               `json:"pending_changes" yaml:"pending_changes"`
}

// GetAllData retrieves all routines for export.
func GetAllData(ctx context.Context, repo Repository) (*ExportData, error) {
	routines, err := repo.ListRoutines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	pending, err := repo.CountQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("count queue: %w", err)
	}
	if routines == nil {
		routines = []*models.Routine{}
	}

	return &ExportData{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Tool:       "routines",
		Routines:   routines,
		Pending:    pending,
	}, nil
}

// ExportJSON exports all data as indented JSON.
func ExportJSON(ctx context.Context, repo Repository) ([]byte, error) {
	data, err := GetAllData(ctx, repo)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

// ExportYAML exports all data as YAML.
func ExportYAML(ctx context.Context, repo Repository) ([]byte, error) {
	data, err := GetAllData(ctx, repo)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(data)
}

// ParseExport decodes an export file. JSON is tried first, then YAML.
func ParseExport(raw []byte) (*ExportData, error) {
	var data ExportData
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &data); err != nil {
			return nil, fmt.Errorf("parse JSON export: %w", err)
		}
	} else if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse YAML export: %w", err)
	}

	if data.Version == "" {
		return nil, fmt.Errorf("export file has no version")
	}
	for _, r := range data.Routines {
		if r == nil {
			return nil, fmt.Errorf("export file contains an empty routine")
		}
		if err := r.Normalize(); err != nil {
			return nil, fmt.Errorf("routine %s: %w", r.ID, err)
		}
	}
	return &data, nil
}
