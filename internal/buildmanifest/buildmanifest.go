// Package buildmanifest loads and validates build manifests: the
// not-persisted input documents that describe how to produce a package
// (sources, dependencies, build/post scripts, output directory).
package buildmanifest

import (
	"os"

	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/manifest"
	"gopkg.in/yaml.v3"
)

// SourceKind identifies how a Source is acquired.
type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceGit   SourceKind = "git"
	SourceTar   SourceKind = "tar"
)

// Source describes one input to be materialized into the build sandbox
// before the build script runs.
type Source struct {
	Kind   SourceKind `yaml:"kind"`
	URL    string     `yaml:"url,omitempty"`
	Path   string     `yaml:"path,omitempty"`
	Commit string     `yaml:"commit,omitempty"`
}

// Manifest is the input document for a build: never persisted to a
// repository, only read from disk to drive internal/build.
type Manifest struct {
	ID          string                     `yaml:"id"`
	Aliases     []string                   `yaml:"aliases,omitempty"`
	Metadata    manifest.PackageMetadata   `yaml:"metadata"`
	Commands    []string                   `yaml:"commands,omitempty"`
	Directory   string                     `yaml:"directory"`
	Edition     string                     `yaml:"edition"`
	BuildScript string                     `yaml:"build_script,omitempty"`
	PostScript  string                     `yaml:"post_script,omitempty"`
	Sources     []Source                   `yaml:"sources,omitempty"`
	Include     []string                   `yaml:"include,omitempty"`
	SDKs        []string                   `yaml:"sdks,omitempty"`
	Env         map[string]string          `yaml:"env,omitempty"`

	// path is the filesystem location this manifest was loaded from, set by
	// Load and used to resolve Include/SDKs entries, which are search-path
	// joined strings rather than repository ids (spec.md section 9's open
	// question on include/sdks path semantics).
	path string
}

// Path returns the filesystem path this manifest was loaded from.
func (m *Manifest) Path() string {
	return m.path
}

// Load reads and parses a build manifest from path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.Io, "buildmanifest.Load", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, ferr.Wrap(ferr.Codec, "buildmanifest.Load", path, err)
	}
	m.path = path

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the required fields a build manifest must carry.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return ferr.New(ferr.Codec, "buildmanifest.Validate", m.path, "id is required")
	}
	if m.Edition == "" {
		return ferr.New(ferr.Codec, "buildmanifest.Validate", m.ID, "edition is required")
	}
	if m.Directory == "" {
		return ferr.New(ferr.Codec, "buildmanifest.Validate", m.ID, "directory is required")
	}
	for _, s := range m.Sources {
		switch s.Kind {
		case SourceLocal, SourceGit, SourceTar:
		default:
			return ferr.New(ferr.Codec, "buildmanifest.Validate", m.ID, "unknown source kind: "+string(s.Kind))
		}
	}
	return nil
}
