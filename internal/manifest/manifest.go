// Package manifest implements the on-disk JSON documents that describe a
// workspace or project (§6.1): pretty-printed on write, tolerant of any
// whitespace on read.
package manifest

import (
	"encoding/json"
	"os"

	"github.com/sapic-foundation/sapic-core/internal/coreerr"
)

// VcsProvider names a supported git hosting provider.
type VcsProvider string

const (
	GitHub VcsProvider = "GitHub"
	GitLab VcsProvider = "GitLab"
)

// VcsRef is the tagged union { "GitHub"|"GitLab", "repository": url }.
type VcsRef struct {
	Provider   VcsProvider `json:"provider"`
	Repository string      `json:"repository"`
}

// Workspace is the Sapic.json document at a workspace's root.
type Workspace struct {
	Name string `json:"name"`
}

// Project is the Sapic.json document at a project's root.
type Project struct {
	Name string  `json:"name"`
	Vcs  *VcsRef `json:"vcs,omitempty"`
}

// ProjectConfig is the project-internal config.json document.
type ProjectConfig struct {
	Archived     bool    `json:"archived"`
	ExternalPath *string `json:"external_path,omitempty"`
	AccountID    *string `json:"account_id,omitempty"`
}

// WriteJSON pretty-prints v to path, matching the teacher's config writer's
// "fail loudly, write atomically enough for a single local process" style.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return coreerr.Wrap(coreerr.Serialization, "marshal manifest", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return coreerr.Wrap(coreerr.Io, "write manifest", err)
	}
	return nil
}

// ReadJSON reads and decodes path into v, tolerating any surrounding
// whitespace (encoding/json already does).
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return coreerr.New(coreerr.NotFound, path)
		}
		return coreerr.Wrap(coreerr.Io, "read manifest", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return coreerr.Wrap(coreerr.Serialization, "unmarshal manifest", err)
	}
	return nil
}

func ReadWorkspace(path string) (Workspace, error) {
	var w Workspace
	err := ReadJSON(path, &w)
	return w, err
}

func ReadProject(path string) (Project, error) {
	var p Project
	err := ReadJSON(path, &p)
	return p, err
}

func ReadProjectConfig(path string) (ProjectConfig, error) {
	var c ProjectConfig
	err := ReadJSON(path, &c)
	return c, err
}
