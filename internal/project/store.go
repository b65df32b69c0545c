// Package project persists editing projects: a named timeline snapshot plus
// its export settings.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"clipstudio/internal/config"
	"clipstudio/internal/timeline"
)

// Project is one saved composition. Tracks and MediaItems together form the
// timeline snapshot the export engine consumes.
type Project struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Duration        float64                `json:"duration"`
	BackgroundColor string                 `json:"backgroundColor"`
	Settings        config.ProjectSettings `json:"settings"`
	Tracks          []timeline.Track       `json:"tracks"`
	MediaItems      []timeline.MediaItem   `json:"mediaItems"`
	UpdatedAt       string                 `json:"updatedAt"`
}

// NewProject creates an empty project with default export settings.
func NewProject(name string) *Project {
	return &Project{
		ID:              uuid.NewString(),
		Name:            name,
		BackgroundColor: "#000000",
		Settings:        config.DefaultProjectSettings(),
		UpdatedAt:       time.Now().Format(time.RFC3339),
	}
}

// Store keeps projects as one JSON file each under a directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save persists a project, stamping its update time. Projects without an ID
// are assigned one.
func (s *Store) Save(p *Project) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now().Format(time.RFC3339)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	if err := os.WriteFile(s.path(p.ID), data, 0644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}

// Load reads one project by ID.
func (s *Store) Load(id string) (*Project, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", id, err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal project %s: %w", id, err)
	}
	return &p, nil
}

// List returns all stored projects, most recently updated first. Unreadable
// files are skipped so one corrupt project does not hide the rest.
func (s *Store) List() ([]*Project, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read project directory: %w", err)
	}

	var projects []*Project
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		p, err := s.Load(id)
		if err != nil {
			continue
		}
		projects = append(projects, p)
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].UpdatedAt > projects[j].UpdatedAt
	})
	return projects, nil
}

// Delete removes a project file.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}
