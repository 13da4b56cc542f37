package repodata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/utils"
	"github.com/sirupsen/logrus"
)

// File names written into every subdir
const (
	RepodataFile = "repodata.json"
	SignatureExt = ".asc"
)

// DefaultSubdir holds packages that declare no subdir
const DefaultSubdir = "noarch"

// CheckSubdir rejects a declared subdir that is not a single directory
// name. An empty subdir is allowed and means DefaultSubdir.
func CheckSubdir(subdir string) error {
	if subdir == "" {
		return nil
	}
	if subdir == "." || subdir == ".." || strings.ContainsAny(subdir, "/\\\x00") {
		return fmt.Errorf("invalid subdir %q", subdir)
	}
	return nil
}

// Repodata is the per-subdir channel index
type Repodata struct {
	Info            Info                         `json:"info"`
	Packages        map[string]*models.IndexJSON `json:"packages"`
	PackagesConda   map[string]*models.IndexJSON `json:"packages.conda"`
	Removed         []string                     `json:"removed"`
	RepodataVersion int                          `json:"repodata_version"`
}

// Info describes the subdir an index belongs to
type Info struct {
	Subdir string `json:"subdir"`
}

// New returns an empty index for subdir
func New(subdir string) *Repodata {
	return &Repodata{
		Info:            Info{Subdir: subdir},
		Packages:        make(map[string]*models.IndexJSON),
		PackagesConda:   make(map[string]*models.IndexJSON),
		Removed:         []string{},
		RepodataVersion: 1,
	}
}

// section returns the map a package file belongs in
func (r *Repodata) section(filename string) (map[string]*models.IndexJSON, error) {
	switch utils.PackageFormat(filename) {
	case ".conda":
		return r.PackagesConda, nil
	case ".tar.bz2":
		return r.Packages, nil
	default:
		return nil, fmt.Errorf("%s is not a conda package file name", filename)
	}
}

// Add stores the entry for filename
func (r *Repodata) Add(filename string, entry *models.IndexJSON) error {
	section, err := r.section(filename)
	if err != nil {
		return err
	}
	section[filename] = entry
	return nil
}

// Remove deletes the entry for filename
func (r *Repodata) Remove(filename string) {
	delete(r.Packages, filename)
	delete(r.PackagesConda, filename)
}

// Len returns the number of entries
func (r *Repodata) Len() int {
	return len(r.Packages) + len(r.PackagesConda)
}

// Marshal renders the index as indented JSON
func (r *Repodata) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads the repodata.json of a subdir. A missing file returns
// os.ErrNotExist.
func Load(subdirPath string) (*Repodata, error) {
	data, err := os.ReadFile(filepath.Join(subdirPath, RepodataFile))
	if err != nil {
		return nil, err
	}

	r := New(filepath.Base(subdirPath))
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", RepodataFile, err)
	}
	if r.Packages == nil {
		r.Packages = make(map[string]*models.IndexJSON)
	}
	if r.PackagesConda == nil {
		r.PackagesConda = make(map[string]*models.IndexJSON)
	}
	return r, nil
}

// List returns the entries of an index as packages
func (r *Repodata) List() []models.Package {
	var packages []models.Package
	for _, section := range []map[string]*models.IndexJSON{r.Packages, r.PackagesConda} {
		for filename, entry := range section {
			pkg := models.Package{Filename: filename, Index: entry}
			rawField(entry, "md5", &pkg.MD5Sum)
			rawField(entry, "sha256", &pkg.SHA256Sum)
			rawField(entry, "size", &pkg.Size)
			packages = append(packages, pkg)
		}
	}
	return packages
}

// rawField decodes entry[key] into dst, leaving dst untouched when the key
// is missing or has another type
func rawField(entry *models.IndexJSON, key string, dst interface{}) {
	if raw, ok := entry.Get(key); ok {
		if err := json.Unmarshal(raw, dst); err != nil {
			logrus.Debugf("Ignoring %s of %s-%s: %v", key, entry.Name, entry.Version, err)
		}
	}
}
