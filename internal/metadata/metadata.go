// Package metadata loads the cover page content of a report.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stgm/visitreport/pkg/models"
)

// ErrMissingProjectName is returned when the metadata names no project.
var ErrMissingProjectName = errors.New("project_name is required")

// Load reads project metadata from a YAML file.
func Load(path string) (models.ProjectMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ProjectMetadata{}, fmt.Errorf("read metadata file: %w", err)
	}
	meta, err := Parse(data)
	if err != nil {
		return models.ProjectMetadata{}, fmt.Errorf("parse metadata file %s: %w", path, err)
	}
	return meta, nil
}

// Parse decodes YAML metadata. Unknown keys are rejected so typos do not
// silently blank a cover field.
func Parse(data []byte) (models.ProjectMetadata, error) {
	var meta models.ProjectMetadata
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&meta); err != nil && !errors.Is(err, io.EOF) {
		return models.ProjectMetadata{}, err
	}
	return meta, nil
}

// Normalize trims every field, drops blank list entries and fills the
// report date with today when it is missing.
func Normalize(meta models.ProjectMetadata, now time.Time) models.ProjectMetadata {
	for _, f := range []*string{
		&meta.ArchitectFile, &meta.ProjectName, &meta.Owner, &meta.Contractor,
		&meta.VisitNumber, &meta.VisitDate, &meta.ReportDate, &meta.VisitedBy,
		&meta.Description, &meta.CoverImage, &meta.Author,
	} {
		*f = strings.TrimSpace(*f)
	}
	meta.Presence = compact(meta.Presence)
	meta.Distribution = compact(meta.Distribution)
	if meta.ReportDate == "" {
		meta.ReportDate = now.Format("2006-01-02")
	}
	return meta
}

// Validate checks the fields a report cannot do without.
func Validate(meta models.ProjectMetadata) error {
	if strings.TrimSpace(meta.ProjectName) == "" {
		return ErrMissingProjectName
	}
	return nil
}

func compact(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
