// Package directory provides a study directory read from a YAML file: the
// studies, their users and groups, the annotation variable sets and the ids
// of entity kinds the catalog does not store itself (samples, families).
package directory

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bart-jansen/opencga/pkg/domain"
)

// Everyone is the member that stands for every user of a study.
const Everyone = "*"

// GroupPrefix marks group members such as @admins.
const GroupPrefix = "@"

// KindVariableSet names variable sets in NotFound errors.
const KindVariableSet domain.EntityKind = "variable_set"

// File is the on-disk layout.
type File struct {
	Studies      []Study              `yaml:"studies"`
	VariableSets []domain.VariableSet `yaml:"variableSets"`
}

// Study lists the principals and external entities of one study.
type Study struct {
	ID     int64               `yaml:"id"`
	Name   string              `yaml:"name"`
	Users  []string            `yaml:"users"`
	Groups map[string][]string `yaml:"groups"`
	// Entities maps an entity kind to the ids that exist in the study.
	Entities map[domain.EntityKind][]int64 `yaml:"entities"`
}

// Directory is an immutable, in-memory index of a File.
type Directory struct {
	studies map[int64]Study
	sets    map[int64]domain.VariableSet
}

var (
	_ domain.StudyDirectory      = (*Directory)(nil)
	_ domain.VariableSetProvider = (*Directory)(nil)
	_ domain.ExistenceChecker    = (*Directory)(nil)
)

// Load reads and indexes the YAML file at path.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	return Parse(raw)
}

// Parse indexes a YAML document. Unknown fields are rejected.
func Parse(raw []byte) (*Directory, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse directory: %w", err)
	}
	return New(f)
}

// New indexes f, rejecting duplicate ids and malformed group names.
func New(f File) (*Directory, error) {
	d := &Directory{
		studies: make(map[int64]Study, len(f.Studies)),
		sets:    make(map[int64]domain.VariableSet, len(f.VariableSets)),
	}
	for _, s := range f.Studies {
		if s.ID <= 0 {
			return nil, fmt.Errorf("study %q: id must be positive", s.Name)
		}
		if _, dup := d.studies[s.ID]; dup {
			return nil, fmt.Errorf("study %d is declared twice", s.ID)
		}
		for g := range s.Groups {
			if !strings.HasPrefix(g, GroupPrefix) {
				return nil, fmt.Errorf("study %d: group %q must start with %s", s.ID, g, GroupPrefix)
			}
		}
		d.studies[s.ID] = s
	}
	for _, vs := range f.VariableSets {
		if _, dup := d.sets[vs.ID]; dup {
			return nil, fmt.Errorf("variable set %d is declared twice", vs.ID)
		}
		d.sets[vs.ID] = vs
	}
	return d, nil
}

// StudyExists implements domain.StudyDirectory.
func (d *Directory) StudyExists(_ context.Context, studyID int64) (bool, error) {
	_, ok := d.studies[studyID]
	return ok, nil
}

// ResolvePrincipals accepts study users, study groups and Everyone.
func (d *Directory) ResolvePrincipals(_ context.Context, studyID int64, members []string) ([]string, error) {
	s, ok := d.studies[studyID]
	if !ok {
		return nil, domain.NotFoundError{Entity: "study", ID: studyID}
	}
	var missing []string
	for _, m := range members {
		switch {
		case m == Everyone:
		case strings.HasPrefix(m, GroupPrefix):
			if _, ok := s.Groups[m]; !ok {
				missing = append(missing, m)
			}
		case !slices.Contains(s.Users, m):
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return nil, domain.PrincipalNotFoundError{StudyID: studyID, Members: missing}
	}
	return members, nil
}

// VariableSet implements domain.VariableSetProvider.
func (d *Directory) VariableSet(_ context.Context, id int64) (domain.VariableSet, error) {
	vs, ok := d.sets[id]
	if !ok {
		return domain.VariableSet{}, domain.NotFoundError{Entity: KindVariableSet, ID: id}
	}
	return vs, nil
}

// Manages reports whether the file lists ids for kind in any study.
func (d *Directory) Manages(kind domain.EntityKind) bool {
	for _, s := range d.studies {
		if _, ok := s.Entities[kind]; ok {
			return true
		}
	}
	return false
}

// Exists implements domain.ExistenceChecker over the listed entity ids.
func (d *Directory) Exists(_ context.Context, studyID int64, kind domain.EntityKind, ids []int64) error {
	s, ok := d.studies[studyID]
	if !ok {
		return domain.NotFoundError{Entity: "study", ID: studyID}
	}
	known := s.Entities[kind]
	for _, id := range ids {
		if !slices.Contains(known, id) {
			return domain.NotFoundError{Entity: kind, ID: id}
		}
	}
	return nil
}
