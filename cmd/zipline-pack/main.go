// Command zipline-pack builds a Module file tree from a
// directory of JavaScript source files: each file is minified and
// content-addressed by SHA-256, and a manifest is written alongside the
// blobs, ready for fetch.Embedded or LoadOrFallBack's fallback path.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/ziplinerpc/bridge/internal/devmodule"
)

func main() {
	srcDir := flag.String("src", "", "directory of module source files (required)")
	outDir := flag.String("out", "", "output directory for the packed tree (required)")
	appName := flag.String("app", "", "application name, used for the manifest filename (required)")
	baseURL := flag.String("base-url", "", "base URL module entries resolve against (required)")
	flag.Parse()

	if *srcDir == "" || *outDir == "" || *appName == "" || *baseURL == "" {
		log.Fatal("zipline-pack: -src, -out, -app, and -base-url are all required")
	}

	manifest, blobs, err := devmodule.PackDirectory(os.DirFS(*srcDir), *baseURL, nil)
	if err != nil {
		log.Fatalf("zipline-pack: pack %s: %v", *srcDir, err)
	}
	if err := devmodule.WriteTree(*outDir, *appName, manifest, blobs); err != nil {
		log.Fatalf("zipline-pack: write %s: %v", *outDir, err)
	}

	log.Printf("zipline-pack: wrote %d module(s) to %s", len(manifest.Modules), *outDir)
}
