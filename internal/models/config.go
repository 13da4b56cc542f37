package models

// InspectConfig contains configuration for reading package descriptors
type InspectConfig struct {
	// Path to a package file, or "-" for stdin
	Path string

	// Extraction
	Strategy        string // auto, seek or materialize
	ScratchDir      string // Parent directory for materialization scratch space
	MaxMetadataSize int64  // Upper bound on the size of info/index.json

	// Output
	Validate bool // Check required fields after decoding
	Compact  bool // Print JSON on a single line
}

// IndexConfig contains configuration for channel index generation
type IndexConfig struct {
	InspectConfig

	// Input/Output
	InputDir  string
	OutputDir string

	// Signing
	GPGKeyPath    string
	GPGPassphrase string

	// Incremental mode
	Incremental bool // Merge into an existing repodata.json instead of replacing it
}
