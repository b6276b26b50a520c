// Package spawn implements the consolidated spawn flow: create a session in
// status spawning, write its manifest to disk, populate the agent env
// contract and emit one session:created event carrying the spawn payload.
package spawn

import (
	"encoding/json"
	"os"
	"path/filepath"

	apperrors "github.com/maestro/maestro/internal/common/errors"
)

// ManifestVersion is the current manifest schema version.
const ManifestVersion = 1

// ManifestSession identifies the session the manifest belongs to and how
// the agent should run.
type ManifestSession struct {
	ID             string `json:"id"`
	Model          string `json:"model"`
	PermissionMode string `json:"permissionMode"`
}

// ManifestTask is the task shape handed to spawned agents.
type ManifestTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Manifest is the on-disk contract read by spawned agents. Agents may
// delete the file on exit.
type Manifest struct {
	ManifestVersion int             `json:"manifestVersion"`
	Role            string          `json:"role,omitempty"`
	Mode            string          `json:"mode,omitempty"`
	Session         ManifestSession `json:"session"`
	Tasks           []ManifestTask  `json:"tasks,omitempty"`
	Task            *ManifestTask   `json:"task,omitempty"`
	Skills          []string        `json:"skills,omitempty"`
	WorkingDir      string          `json:"workingDir,omitempty"`
	ProjectID       string          `json:"projectId"`
}

// Validate checks the structural contract: a version, exactly one of
// role|mode, task or tasks, and a session with model and permission mode.
func (m *Manifest) Validate() error {
	if m.ManifestVersion == 0 {
		return apperrors.Validation("manifest is missing manifestVersion")
	}
	if (m.Role == "") == (m.Mode == "") {
		return apperrors.Validation("manifest requires exactly one of role or mode")
	}
	if m.Task == nil && len(m.Tasks) == 0 {
		return apperrors.Validation("manifest requires task or tasks")
	}
	if m.Session.ID == "" || m.Session.Model == "" || m.Session.PermissionMode == "" {
		return apperrors.Validation("manifest session requires id, model and permissionMode")
	}
	return nil
}

// ManifestPath returns the deterministic manifest location for a session.
func ManifestPath(root, sessionID string) string {
	return filepath.Join(root, "sessions", sessionID, "manifest.json")
}

// WriteManifest validates the manifest, then writes it at the session's
// deterministic path and re-reads the written bytes as a structural check.
func WriteManifest(root string, m *Manifest) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	path := ManifestPath(root, m.Session.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}

	var written Manifest
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &written); err != nil {
		return "", err
	}
	if err := written.Validate(); err != nil {
		return "", err
	}
	return path, nil
}
