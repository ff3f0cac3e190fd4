// Command zipline-host wires a host-side Endpoint to an in-process
// luahost.Engine over a channel.PipeChannel, loads an application's
// modules with the Module Loader, and serves a diagnostics HTTP surface.
// Flag/signal-handling shape follows the conventions in
// internal/config/config.go (flag.Bool for mode switches, signal.Notify
// for graceful shutdown); GUI integration is an explicit Non-goal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziplinerpc/bridge/internal/bootstrap"
	"github.com/ziplinerpc/bridge/internal/channel"
	"github.com/ziplinerpc/bridge/internal/diag"
	"github.com/ziplinerpc/bridge/internal/endpoint"
	"github.com/ziplinerpc/bridge/internal/listener"
	"github.com/ziplinerpc/bridge/internal/loader"
	"github.com/ziplinerpc/bridge/internal/loader/fetch"
	"github.com/ziplinerpc/bridge/internal/luahost"
	"github.com/ziplinerpc/bridge/internal/wsbridge"
)

var appVersion = "dev"

var wsUpgrader = websocket.Upgrader{}

func main() {
	appName := flag.String("app", "", "application name (required)")
	manifestURL := flag.String("manifest", "", "manifest URL (required)")
	listenAddr := flag.String("listen", "127.0.0.1:8787", "diagnostics HTTP listen address")
	cachePath := flag.String("cache", "zipline-cache.db", "sqlite module cache path")
	pollInterval := flag.Duration("poll", 30*time.Second, "continuous-mode manifest poll interval")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("zipline-host v%s\n", appVersion)
		return
	}
	if *appName == "" || *manifestURL == "" {
		log.Fatal("zipline-host: -app and -manifest are required")
	}

	events := listener.NewLogBuffer(500)
	hub := wsbridge.NewEventHub()
	fanout := listener.NewFanout(events, hub)

	hostCh, jsCh := channel.NewPipe(16)
	hostEP := endpoint.New("host", hostCh, fanout)
	jsEP := endpoint.New("js", jsCh, fanout)
	hostCh.SetHandler(hostEP)
	jsCh.SetHandler(jsEP)

	engine := luahost.NewEngine()
	defer engine.Close()
	engine.Bridge(jsEP)

	host, err := bootstrap.InstallHost(hostEP, func(severity, text string) {
		log.Printf("[%s] %s", severity, text)
	})
	if err != nil {
		log.Fatalf("zipline-host: install host bootstrap: %v", err)
	}
	defer host.Close()

	httpFetcher := fetch.NewHTTP()
	cache, err := fetch.OpenCache(*cachePath, httpFetcher)
	if err != nil {
		log.Fatalf("zipline-host: open cache: %v", err)
	}
	defer cache.Close()

	l := &loader.Loader{
		ManifestChain: fetch.Chain{httpFetcher},
		ModuleChain:   fetch.Chain{cache}, // cache already delegates to httpFetcher on miss
		Listener:      fanout,
	}

	diagServer := &diag.Server{Services: hostEP, Events: events}

	mux := diagServer.Mux()
	mux.Handle("/api/devtools/events", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.ServeWebsocket(conn)
	}))

	srv := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		log.Printf("zipline-host: diagnostics listening on %s", *listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("zipline-host: http server: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan loader.LoadedInstance, 8)
	go l.RunContinuous(ctx, *appName, *manifestURL, *pollInterval, engine, out)
	go func() {
		for inst := range out {
			status := diag.LoaderStatus{ApplicationName: *appName}
			if inst.Err != nil {
				status.LastError = inst.Err.Error()
			} else {
				status.LastSuccess = timeNow()
				if inst.Manifest != nil {
					status.ModuleCount = len(inst.Manifest.Modules)
				}
			}
			diagServer.SetLoaderStatus(status)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Print("zipline-host: shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func timeNow() time.Time { return time.Now() }
