package repodata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ralt/condainspect/internal/generator"
	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/signer"
	"github.com/ralt/condainspect/internal/utils"
	"github.com/sirupsen/logrus"
)

// Generator implements the generator.Generator interface for conda channels
type Generator struct {
	signer signer.Signer
}

// NewGenerator creates a new channel index generator. A nil signer leaves
// the index unsigned.
func NewGenerator(s signer.Signer) generator.Generator {
	return &Generator{signer: s}
}

// ValidatePackages checks every package has a usable descriptor
func (g *Generator) ValidatePackages(packages []models.Package) error {
	for _, pkg := range packages {
		if pkg.Index == nil {
			return fmt.Errorf("%s: no index.json", pkg.Filename)
		}
		if err := pkg.Index.Validate(); err != nil {
			return fmt.Errorf("%s: %w", pkg.Filename, err)
		}
		if err := CheckSubdir(pkg.Index.Subdir); err != nil {
			return fmt.Errorf("%s: %w", pkg.Filename, err)
		}
		if utils.PackageFormat(pkg.Filename) == "" {
			return fmt.Errorf("%s: not a conda package file name", pkg.Filename)
		}
	}
	return nil
}

// Generate writes repodata.json for every subdir the packages belong to.
// noarch is always written since conda clients require it.
func (g *Generator) Generate(ctx context.Context, config *models.IndexConfig, packages []models.Package) error {
	logrus.Info("Generating channel index...")

	subdirPackages := map[string][]models.Package{DefaultSubdir: nil}
	for _, pkg := range packages {
		if err := CheckSubdir(pkg.Index.Subdir); err != nil {
			return fmt.Errorf("%s: %w", pkg.Filename, err)
		}
		subdir := pkg.Index.Subdir
		if subdir == "" {
			subdir = DefaultSubdir
		}
		subdirPackages[subdir] = append(subdirPackages[subdir], pkg)
	}

	subdirs := make([]string, 0, len(subdirPackages))
	for subdir := range subdirPackages {
		subdirs = append(subdirs, subdir)
	}
	sort.Strings(subdirs)

	for _, subdir := range subdirs {
		if err := g.generateForSubdir(ctx, config, subdir, subdirPackages[subdir]); err != nil {
			return fmt.Errorf("failed to generate for %s: %w", subdir, err)
		}
	}

	logrus.Info("Channel index generated successfully")
	return nil
}

// generateForSubdir copies packages into one subdir and writes its index
func (g *Generator) generateForSubdir(ctx context.Context, config *models.IndexConfig, subdir string, packages []models.Package) error {
	logrus.Infof("Generating for subdir: %s (%d packages)", subdir, len(packages))

	subdirPath := filepath.Join(config.OutputDir, subdir)
	if err := utils.EnsureDir(subdirPath); err != nil {
		return err
	}

	index := New(subdir)
	if config.Incremental {
		existing, err := Load(subdirPath)
		switch {
		case err == nil:
			index = existing
			index.Info.Subdir = subdir
			logrus.Infof("Merging with %d existing packages in %s", index.Len(), subdir)
			for _, conflict := range utils.DetectConflicts(existing.List(), packages) {
				logrus.Warnf("Replacing existing %s in %s", utils.PackageIdentity(conflict), subdir)
			}
		case errors.Is(err, os.ErrNotExist):
			logrus.Debugf("No existing %s in %s", RepodataFile, subdir)
		default:
			return err
		}
	}

	// Entries already in the index that share an identity with a new package
	// are dropped so the later file wins
	owners := make(map[string]string)
	for _, pkg := range index.List() {
		owners[utils.PackageIdentity(pkg)] = pkg.Filename
	}

	for _, pkg := range packages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		filename := filepath.Base(pkg.Filename)
		dstPath := filepath.Join(subdirPath, filename)
		if !utils.SameFile(pkg.Filename, dstPath) {
			if err := utils.CopyFile(pkg.Filename, dstPath); err != nil {
				return fmt.Errorf("failed to copy %s: %w", pkg.Filename, err)
			}
		}

		identity := utils.PackageIdentity(pkg)
		if previous, ok := owners[identity]; ok && previous != filename {
			logrus.Warnf("%s duplicates %s in %s, keeping %s", filename, previous, subdir, filename)
			index.Remove(previous)
		}
		owners[identity] = filename

		entry, err := newEntry(pkg)
		if err != nil {
			return err
		}
		if err := index.Add(filename, entry); err != nil {
			return err
		}
	}

	return g.write(subdirPath, index)
}

// newEntry returns the descriptor extended with the file checksums
func newEntry(pkg models.Package) (*models.IndexJSON, error) {
	entry := pkg.Index.Clone()
	for _, field := range []struct {
		key   string
		value interface{}
	}{
		{"md5", pkg.MD5Sum},
		{"sha256", pkg.SHA256Sum},
		{"size", pkg.Size},
	} {
		if err := entry.Set(field.key, field.value); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// write stores repodata.json, its compressed variants and the signature
func (g *Generator) write(subdirPath string, index *Repodata) error {
	data, err := index.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", RepodataFile, err)
	}

	repodataPath := filepath.Join(subdirPath, RepodataFile)
	if err := utils.WriteFile(repodataPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", RepodataFile, err)
	}

	bz2, err := utils.Bzip2Compress(data)
	if err != nil {
		return fmt.Errorf("failed to compress %s: %w", RepodataFile, err)
	}
	if err := utils.WriteFile(repodataPath+".bz2", bz2, 0644); err != nil {
		return err
	}

	zst, err := utils.ZstdCompress(data)
	if err != nil {
		return fmt.Errorf("failed to compress %s: %w", RepodataFile, err)
	}
	if err := utils.WriteFile(repodataPath+".zst", zst, 0644); err != nil {
		return err
	}

	if g.signer != nil {
		signature, err := g.signer.SignDetached(data)
		if err != nil {
			return fmt.Errorf("failed to sign %s: %w", RepodataFile, err)
		}
		if err := utils.WriteFile(repodataPath+SignatureExt, signature, 0644); err != nil {
			return err
		}
		logrus.Debugf("Signed %s", repodataPath)
	}

	logrus.Infof("Wrote %s (%d packages)", repodataPath, index.Len())
	return nil
}
