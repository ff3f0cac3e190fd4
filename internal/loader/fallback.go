package loader

import (
	"context"
	"io/fs"

	"github.com/ziplinerpc/bridge/internal/loader/fetch"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

// FallbackFS is the read-only filesystem consulted by LoadOrFallBack: the
// manifest lives at ManifestFilename(appName); modules live content-
// addressed by lowercase-hex SHA-256, same convention as fetch.Embedded.
type FallbackFS fs.FS

// LoadOrFallBack first attempts the normal network load; on any error it
// attempts a fallback load with no network, using the embedded manifest
// keyed by application name. If both fail, the last error is returned.
func (l *Loader) LoadOrFallBack(ctx context.Context, applicationName, manifestURL string, fallbackFS FallbackFS, receiver Receiver) error {
	if err := l.Load(ctx, applicationName, manifestURL, receiver); err == nil {
		return nil
	} else if fallbackFS == nil {
		return err
	}

	// The preceding Load call already emitted applicationLoadStart and
	// applicationLoadFailed; a successful fallback here only adds
	// applicationLoadEnd.
	lst := l.listener()

	b, err := fs.ReadFile(fallbackFS, ManifestFilename(applicationName))
	if err != nil {
		fbErr := zerror.New(zerror.KindLoader, "loadOrFallBack", zerror.ErrModuleUnavailable)
		lst.ApplicationLoadFailed(applicationName, fbErr)
		return fbErr
	}
	m, err := DecodeManifest(b, manifestURL)
	if err != nil {
		lst.ManifestParseFailed(applicationName, manifestURL, err)
		fbErr := zerror.New(zerror.KindLoader, "loadOrFallBack", zerror.ErrManifestParse)
		lst.ApplicationLoadFailed(applicationName, fbErr)
		return fbErr
	}

	fallbackLoader := &Loader{
		ModuleChain:         fetch.Embedded{FS: fallbackFS},
		ConcurrentDownloads: l.ConcurrentDownloads,
		Listener:            l.Listener,
	}
	if err := fallbackLoader.runModuleJobs(ctx, applicationName, m, receiver); err != nil {
		lst.ApplicationLoadFailed(applicationName, err)
		return err
	}

	lst.ApplicationLoadEnd(applicationName)
	return nil
}
