package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ziplinerpc/bridge/internal/listener"
	"github.com/ziplinerpc/bridge/internal/loader/fetch"
	"github.com/ziplinerpc/bridge/internal/zerror"
)

// Receiver installs one module's bytecode.
type Receiver interface {
	Receive(ctx context.Context, id string, bytecode []byte) error
}

// ReceiverFunc adapts a plain function to Receiver.
type ReceiverFunc func(ctx context.Context, id string, bytecode []byte) error

func (f ReceiverFunc) Receive(ctx context.Context, id string, bytecode []byte) error {
	return f(ctx, id, bytecode)
}

const defaultConcurrentDownloads = 3

// Loader runs the Module Loader's fetch-manifest-then-fetch-modules
// pipeline.
type Loader struct {
	// ManifestChain fetches manifest bytes; ModuleChain fetches module
	// bytes. Both are consulted as an ordered fetch chain.
	ManifestChain fetch.Fetcher
	ModuleChain   fetch.Fetcher

	// ConcurrentDownloads bounds the download semaphore (default 3).
	ConcurrentDownloads int

	Listener listener.EventListener
}

func (l *Loader) listener() listener.EventListener {
	if l.Listener == nil {
		return listener.NopListener{}
	}
	return listener.NewSafe(l.Listener)
}

func (l *Loader) concurrency() int {
	if l.ConcurrentDownloads <= 0 {
		return defaultConcurrentDownloads
	}
	return l.ConcurrentDownloads
}

// Load fetches the manifest at manifestURL, then fetches and delivers every
// module to receiver in dependency order.
func (l *Loader) Load(ctx context.Context, applicationName, manifestURL string, receiver Receiver) error {
	lst := l.listener()
	lst.ApplicationLoadStart(applicationName)

	m, err := l.loadManifest(ctx, applicationName, manifestURL)
	if err != nil {
		lst.ApplicationLoadFailed(applicationName, err)
		return err
	}

	if err := l.runModuleJobs(ctx, applicationName, m, receiver); err != nil {
		lst.ApplicationLoadFailed(applicationName, err)
		return err
	}

	lst.ApplicationLoadEnd(applicationName)
	return nil
}

func (l *Loader) loadManifest(ctx context.Context, applicationName, manifestURL string) (*Manifest, error) {
	lst := l.listener()
	lst.DownloadStart(applicationName, manifestURL)

	b, err := l.ManifestChain.Fetch(ctx, applicationName, "", sentinelSHA256(), manifestURL)
	if err != nil {
		lst.DownloadFailed(applicationName, manifestURL, err)
		return nil, zerror.New(zerror.KindLoader, "loadManifest", err)
	}
	if len(b) == 0 {
		err := zerror.ErrModuleUnavailable
		lst.DownloadFailed(applicationName, manifestURL, err)
		return nil, err
	}
	lst.DownloadEnd(applicationName, manifestURL)

	m, err := DecodeManifest(b, manifestURL)
	if err != nil {
		lst.ManifestParseFailed(applicationName, manifestURL, err)
		return nil, zerror.New(zerror.KindLoader, "decodeManifest", fmt.Errorf("%w: %v", zerror.ErrManifestParse, err))
	}
	return m, nil
}

type moduleJob struct {
	id   string
	mod  ManifestModule
	done chan struct{}
	err  error
}

// runModuleJobs spawns one job per module, all sharing a bounded download
// semaphore, and delivers receive() calls strictly after each module's
// dependencies have been received.
func (l *Loader) runModuleJobs(ctx context.Context, applicationName string, m *Manifest, receiver Receiver) error {
	sem := make(chan struct{}, l.concurrency())
	jobs := make(map[string]*moduleJob, len(m.Modules))
	for id, mod := range m.Modules {
		jobs[id] = &moduleJob{id: id, mod: mod, done: make(chan struct{})}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	recordErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, job := range jobs {
		wg.Add(1)
		go func(job *moduleJob) {
			defer wg.Done()
			defer close(job.done)

			b, err := l.fetchModule(ctx, applicationName, job, sem)
			if err != nil {
				job.err = err
				recordErr(err)
				return
			}

			for _, depID := range job.mod.DependsOnIds {
				dep, ok := jobs[depID]
				if !ok {
					continue
				}
				select {
				case <-dep.done:
				case <-ctx.Done():
					job.err = ctx.Err()
					recordErr(job.err)
					return
				}
				if dep.err != nil {
					job.err = fmt.Errorf("dependency %q failed: %w", depID, dep.err)
					recordErr(job.err)
					return
				}
			}

			if err := receiver.Receive(ctx, job.id, b); err != nil {
				job.err = err
				recordErr(err)
			}
		}(job)
	}

	wg.Wait()
	return firstErr
}

func (l *Loader) fetchModule(ctx context.Context, applicationName string, job *moduleJob, sem chan struct{}) ([]byte, error) {
	lst := l.listener()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	lst.DownloadStart(applicationName, job.mod.URL)
	b, err := l.ModuleChain.Fetch(ctx, applicationName, job.id, job.mod.SHA256, job.mod.URL)
	<-sem

	if err != nil {
		lst.DownloadFailed(applicationName, job.mod.URL, err)
		return nil, err
	}
	if len(b) == 0 {
		err := zerror.ErrModuleUnavailable
		lst.DownloadFailed(applicationName, job.mod.URL, err)
		return nil, err
	}
	lst.DownloadEnd(applicationName, job.mod.URL)

	sum := sha256.Sum256(b)
	if hex.EncodeToString(sum[:]) != job.mod.SHA256 {
		return nil, zerror.ErrSha256Mismatch
	}
	return b, nil
}
