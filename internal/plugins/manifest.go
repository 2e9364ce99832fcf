package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/lightshow/lightshow/internal/protocol"
)

// ManifestFile is the name of the manifest inside a plugin directory.
const ManifestFile = "manifest.json"

// Capability names a feature a plugin advertises.
type Capability string

const (
	CapabilityAnimation Capability = "animation"
	CapabilityEvents    Capability = "events"
)

// Manifest represents manifest.json structure
type Manifest struct {
	ID           string       `json:"id" validate:"required,max=64"`
	Name         string       `json:"name" validate:"required"`
	Version      string       `json:"version"`
	Description  string       `json:"description"`
	Executable   string       `json:"executable" validate:"required"`
	Args         []string     `json:"args"`
	Capabilities []Capability `json:"capabilities" validate:"dive,oneof=animation events"`
}

// Descriptor is a validated plugin ready to be spawned.
type Descriptor struct {
	Manifest Manifest `json:"manifest"`
	// Dir is the plugin directory; it becomes the process working directory.
	Dir string `json:"dir"`
	// Executable is the resolved path of the plugin binary.
	Executable string `json:"executable"`
}

var validate = validator.New()

// configErr wraps err so that errors.Is(err, protocol.ErrConfig) holds.
func configErr(dir string, err error) error {
	return fmt.Errorf("plugin %q: %w: %w", dir, protocol.ErrConfig, err)
}

// LoadDescriptor reads and validates the manifest in dir. Every failure
// wraps protocol.ErrConfig.
func LoadDescriptor(dir string) (*Descriptor, error) {
	if !utf8.ValidString(dir) {
		return nil, configErr(dir, errors.New("directory name is not valid UTF-8"))
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, configErr(dir, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, configErr(dir, fmt.Errorf("parse manifest: %w", err))
	}
	if err := validate.Struct(m); err != nil {
		return nil, configErr(dir, fmt.Errorf("manifest: %w", err))
	}
	if len(m.Capabilities) == 0 {
		m.Capabilities = []Capability{CapabilityAnimation}
	}

	exe := m.Executable
	if !filepath.IsAbs(exe) {
		exe = filepath.Join(dir, exe)
	}

	d := &Descriptor{Manifest: m, Dir: dir, Executable: exe}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate re-checks the parts of a descriptor that can change on disk.
// It is called right before a process is started.
func (d *Descriptor) Validate() error {
	if !utf8.ValidString(d.Dir) {
		return configErr(d.Dir, errors.New("directory name is not valid UTF-8"))
	}
	if !utf8.ValidString(d.Executable) {
		return configErr(d.Dir, errors.New("executable path is not valid UTF-8"))
	}
	info, err := os.Stat(d.Executable)
	if err != nil {
		return configErr(d.Dir, fmt.Errorf("executable: %w", err))
	}
	if !info.Mode().IsRegular() {
		return configErr(d.Dir, fmt.Errorf("executable %s is not a regular file", d.Executable))
	}
	if info.Mode().Perm()&0o111 == 0 {
		return configErr(d.Dir, fmt.Errorf("executable %s is not executable", d.Executable))
	}
	return nil
}

// ID returns the manifest id.
func (d *Descriptor) ID() string {
	return d.Manifest.ID
}

// Has reports whether the plugin advertises c.
func (d *Descriptor) Has(c Capability) bool {
	return slices.Contains(d.Manifest.Capabilities, c)
}
