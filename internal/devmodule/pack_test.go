package devmodule_test

import (
	"os"
	"testing"
	"testing/fstest"

	"github.com/ziplinerpc/bridge/internal/devmodule"
	"github.com/ziplinerpc/bridge/internal/loader"
)

func TestPackDirectoryProducesVerifiableManifest(t *testing.T) {
	src := fstest.MapFS{
		"alpha.js": &fstest.MapFile{Data: []byte("function alpha() {\n  return 1;\n}\n")},
		"bravo.js": &fstest.MapFile{Data: []byte("function bravo() {\n  return 2;\n}\n")},
	}

	manifest, blobs, err := devmodule.PackDirectory(src, "https://modules.example/app", map[string][]string{
		"bravo": {"alpha"},
	})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(manifest.Modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(manifest.Modules))
	}
	bravo, ok := manifest.Modules["bravo"]
	if !ok {
		t.Fatal("missing bravo module")
	}
	if len(bravo.DependsOnIds) != 1 || bravo.DependsOnIds[0] != "alpha" {
		t.Fatalf("unexpected deps: %v", bravo.DependsOnIds)
	}
	if _, ok := blobs[bravo.SHA256]; !ok {
		t.Fatal("blob for bravo's sha256 missing from output")
	}
}

func TestWriteTreeRoundTripsThroughDecodeManifest(t *testing.T) {
	src := fstest.MapFS{
		"alpha.js": &fstest.MapFile{Data: []byte("var x = 1;")},
	}
	manifest, blobs, err := devmodule.PackDirectory(src, "https://modules.example/app", nil)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	dir := t.TempDir()
	if err := devmodule.WriteTree(dir, "app", manifest, blobs); err != nil {
		t.Fatalf("writeTree: %v", err)
	}

	raw, err := os.ReadFile(dir + "/" + loader.ManifestFilename("app"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	decoded, err := loader.DecodeManifest(raw, "https://modules.example/app/"+loader.ManifestFilename("app"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(decoded.Modules))
	}
}
