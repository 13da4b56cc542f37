package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// IndexJSON is the package descriptor stored at info/index.json.
//
// The typed fields are a read-only view over the decoded document. The
// document itself is kept as an ordered set of raw JSON values, so keys this
// type does not know about survive decoding and re-encoding in their
// original order.
type IndexJSON struct {
	Name        string
	Version     string
	Build       string
	BuildNumber uint64
	Subdir      string
	Platform    string
	Arch        string
	License     string
	Depends     []string
	Constrains  []string
	Timestamp   *int64

	fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// indexView lists the keys with a typed accessor on IndexJSON
type indexView struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Build       string   `json:"build"`
	BuildNumber uint64   `json:"build_number"`
	Subdir      string   `json:"subdir"`
	Platform    string   `json:"platform"`
	Arch        string   `json:"arch"`
	License     string   `json:"license"`
	Depends     []string `json:"depends"`
	Constrains  []string `json:"constrains"`
	Timestamp   *int64   `json:"timestamp"`
}

// UnmarshalJSON decodes a JSON object, filling the typed view and keeping
// every key in source order
func (r *IndexJSON) UnmarshalJSON(data []byte) error {
	var view indexView
	if err := json.Unmarshal(data, &view); err != nil {
		return err
	}

	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, fields); err != nil {
		return err
	}

	*r = IndexJSON{
		Name:        view.Name,
		Version:     view.Version,
		Build:       view.Build,
		BuildNumber: view.BuildNumber,
		Subdir:      view.Subdir,
		Platform:    view.Platform,
		Arch:        view.Arch,
		License:     view.License,
		Depends:     view.Depends,
		Constrains:  view.Constrains,
		Timestamp:   view.Timestamp,
		fields:      fields,
	}
	return nil
}

// MarshalJSON encodes the record with keys in their original order. Values
// are written as they appeared in the source document.
func (r *IndexJSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r.fields != nil {
		for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
			if buf.Len() > 1 {
				buf.WriteByte(',')
			}
			key, err := encodeKey(pair.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(pair.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeKey quotes a key without HTML escaping
func encodeKey(key string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(key); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Keys returns the document keys in source order
func (r *IndexJSON) Keys() []string {
	if r.fields == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Get returns the raw JSON value stored under key
func (r *IndexJSON) Get(key string) (json.RawMessage, bool) {
	if r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// Set stores value under key. Existing keys keep their position, new keys
// are appended. The typed view is not updated.
func (r *IndexJSON) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if r.fields == nil {
		r.fields = orderedmap.New[string, json.RawMessage]()
	}
	r.fields.Set(key, raw)
	return nil
}

// Clone returns a deep copy of the record
func (r *IndexJSON) Clone() *IndexJSON {
	c := *r
	c.Depends = append([]string(nil), r.Depends...)
	c.Constrains = append([]string(nil), r.Constrains...)
	if r.Timestamp != nil {
		ts := *r.Timestamp
		c.Timestamp = &ts
	}
	c.fields = orderedmap.New[string, json.RawMessage]()
	if r.fields != nil {
		for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
			c.fields.Set(pair.Key, append(json.RawMessage(nil), pair.Value...))
		}
	}
	return &c
}

// Identity returns the name-version-build triple that names a conda build
func (r *IndexJSON) Identity() string {
	return fmt.Sprintf("%s-%s-%s", r.Name, r.Version, r.Build)
}

// Validate checks the required descriptor fields are present. Decoding never
// calls it.
func (r *IndexJSON) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	for _, key := range []string{"version", "build", "build_number"} {
		if _, ok := r.Get(key); !ok {
			return fmt.Errorf("%s is required", key)
		}
	}
	return nil
}

// Package is a package file found on disk together with its descriptor
type Package struct {
	// File information
	Filename  string
	Size      int64
	MD5Sum    string
	SHA256Sum string

	Index *IndexJSON
}
