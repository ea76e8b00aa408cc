package taskwire

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// ExportFormat is the top-level structure for JSON exports: the projected
// task list plus the changes still awaiting server confirmation, so an
// export taken offline loses nothing.
type ExportFormat struct {
	Version    string   `json:"version"`
	ExportedAt string   `json:"exported_at"`
	Profile    string   `json:"profile"`
	Tasks      []Task   `json:"tasks"`
	Pending    []Change `json:"pending_changes,omitempty"`
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total   int      `json:"total"`
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Export writes the client's current state to w.
func (c *Client) Export(w io.Writer) error {
	snap := c.Engine().Snapshot()

	doc := ExportFormat{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Profile:    c.config.Profile,
		Tasks:      snap.Tasks,
		Pending:    snap.Changelog,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Import replays an export through the regular change protocol: every
// imported task becomes a create change (plus a complete when it was
// done), so imports sync to the server exactly like local edits. Tasks
// whose IDs are already in the projection are skipped.
func (c *Client) Import(r io.Reader) (*ImportResult, error) {
	var doc ExportFormat
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	if doc.Version != ExportVersion {
		return nil, fmt.Errorf("unsupported export version %q (expected %q)", doc.Version, ExportVersion)
	}

	engine := c.Engine()
	present := make(map[string]struct{})
	for _, t := range engine.Snapshot().Tasks {
		present[t.ID] = struct{}{}
	}

	result := &ImportResult{Total: len(doc.Tasks)}
	for _, t := range doc.Tasks {
		if _, dup := present[t.ID]; dup {
			result.Skipped++
			continue
		}

		create := NewChange(ChangeCreate, t.ID, t.Name)
		if t.CreatedAt != "" {
			create.CreatedAt = t.CreatedAt
		}
		if err := engine.Apply(create); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", t.ID, err))
			continue
		}

		if t.Completed() {
			complete := NewChange(ChangeComplete, t.ID, "")
			complete.CreatedAt = *t.CompletedAt
			if err := engine.Apply(complete); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", t.ID, err))
				continue
			}
		}

		result.Created++
	}

	return result, nil
}
