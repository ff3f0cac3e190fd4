// Package devmodule packs local JavaScript source files into a module
// tree for development fixtures and the fallback-embed path:
// content-addressed by lowercase-hex SHA-256, same convention
// fetch.Embedded reads back. Grounded on
// internal/sdk/sdk.go's embed-then-minify-at-init pipeline, generalized
// from "serve over HTTP" to "produce a manifest plus a blob set a Loader
// can consume."
package devmodule

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"

	"github.com/ziplinerpc/bridge/internal/loader"
)

// Source is one module's unpacked input before packing.
type Source struct {
	ID           string
	Path         string // relative path; its extension decides whether the source is minified
	DependsOnIds []string
	Data         []byte
}

// newMinifier builds the one minify.M a PackDirectory call shares across
// all its files, the same way internal/sdk/sdk.go shares one minify.M
// across all embedded files.
func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("application/javascript", js.Minify)
	return m
}

// packOne minifies .js sources (pass-through for anything else, e.g. .lua
// fixtures that have no JS minifier equivalent in this stack) and returns
// the packed bytes plus their lowercase-hex SHA-256.
func packOne(m *minify.M, src Source) (packed []byte, sha256Hex string, err error) {
	packed = src.Data
	if strings.EqualFold(filepath.Ext(src.Path), ".js") {
		out, minErr := m.Bytes("application/javascript", src.Data)
		if minErr == nil {
			packed = out
		}
		// A minify failure falls back to the original bytes, same as
		// internal/sdk/sdk.go's init() does — packing never fails just
		// because a fixture isn't valid enough to minify.
	}
	sum := sha256.Sum256(packed)
	return packed, hex.EncodeToString(sum[:]), nil
}

// PackDirectory walks dir for module source files, packs each one, and
// builds a Manifest whose module URLs are baseURL + "/" + the packed bytes'
// sha256 hex. Returns the manifest plus a sha256-hex-keyed blob
// map suitable for fetch.Embedded or for writing to disk via WriteTree.
func PackDirectory(dirFS fs.FS, baseURL string, dependsOnIds map[string][]string) (*loader.Manifest, map[string][]byte, error) {
	m := newMinifier()
	manifest := &loader.Manifest{Modules: make(map[string]loader.ManifestModule)}
	blobs := make(map[string][]byte)

	var paths []string
	err := fs.WalkDir(dirFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := fs.ReadFile(dirFS, path)
		if err != nil {
			return nil, nil, err
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		packed, sha, err := packOne(m, Source{ID: id, Path: path, Data: data})
		if err != nil {
			return nil, nil, err
		}
		blobs[sha] = packed
		manifest.Modules[id] = loader.ManifestModule{
			URL:          strings.TrimRight(baseURL, "/") + "/" + sha,
			SHA256:       sha,
			DependsOnIds: dependsOnIds[id],
		}
	}
	return manifest, blobs, nil
}

// WriteTree writes blobs (keyed by sha256 hex, as fetch.Embedded expects)
// and the manifest (at loader.ManifestFilename(applicationName)) into
// outDir, ready to be embedded with a go:embed directive or served
// directly from disk.
func WriteTree(outDir, applicationName string, manifest *loader.Manifest, blobs map[string][]byte) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for sha, b := range blobs {
		if err := os.WriteFile(filepath.Join(outDir, sha), b, 0o644); err != nil {
			return err
		}
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, loader.ManifestFilename(applicationName)), manifestBytes, 0o644)
}
