package snapshot

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultInterval is the fallback poll cadence. Filesystem notifications
// wake the watcher earlier when available; the ticker guarantees progress
// when they are not delivered.
const DefaultInterval = time.Second

// Watcher observes a snapshot directory and publishes every newly completed
// field file to a Store. It only considers final-named *.vtk files, so the
// producer's temporary names are invisible by contract, and it never lets
// a bad file displace the last good snapshot.
type Watcher struct {
	Dir      string
	Want     [3]int        // run dimensions; mismatching snapshots are skipped
	Interval time.Duration // zero means DefaultInterval
	Store    *Store

	// OnPublish, when set, is called after each successful publish. It
	// runs on the watcher goroutine and must not block.
	OnPublish func(*Snapshot)

	lastLoaded string // highest file name published so far
	lastFailed string // last file that failed to parse, to log it once
}

// Run watches until the context is canceled. Parse failures and shape
// mismatches are logged and skipped; only the context ending or the
// directory disappearing stops the loop.
func (w *Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		if err := fsw.Add(w.Dir); err != nil {
			log.Printf("snapshot watch %s: %v, polling only", w.Dir, err)
		}
		defer fsw.Close()
	} else {
		log.Printf("snapshot watch: %v, polling only", err)
		fsw = &fsnotify.Watcher{}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.scan()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				continue
			}
			// Renames and creates are how snapshots appear.
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				w.scan()
			}
		case err, ok := <-fsw.Errors:
			if ok && err != nil {
				log.Printf("snapshot watch: %v", err)
			}
		case <-ticker.C:
			w.scan()
		}
	}
}

// scan loads the newest unseen snapshot file, if any. Solver output names
// embed the step number, so lexical order is publish order.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		log.Printf("snapshot scan %s: %v", w.Dir, err)
		return
	}
	newest := ""
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".vtk") || strings.HasPrefix(name, ".") {
			continue
		}
		if name > w.lastLoaded && name > newest {
			newest = name
		}
	}
	if newest == "" {
		return
	}

	path := filepath.Join(w.Dir, newest)
	snap, err := ReadVTK(path)
	if err != nil {
		// Retained last good snapshot; retry on the next poll in case
		// the publish contract was violated by an in-flight write.
		if newest != w.lastFailed {
			log.Printf("snapshot load %s: %v (keeping previous)", path, err)
			w.lastFailed = newest
		}
		return
	}
	if got := [3]int{snap.Nx, snap.Ny, snap.Nz}; w.Want != [3]int{} && got != w.Want {
		log.Printf("snapshot load %s: %v", path, &ShapeMismatchError{Got: got, Want: w.Want})
		w.lastLoaded = newest // permanent for this file, skip it
		return
	}

	w.lastLoaded = newest
	w.Store.Publish(snap)
	if w.OnPublish != nil {
		w.OnPublish(snap)
	}
}
