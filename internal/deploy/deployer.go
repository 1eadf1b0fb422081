// Package deploy reconciles a plain drop-folder with the data set registry:
// files ending in .dset are deployed, files ending in .undeploy mark the
// matching deployed definition for removal.
package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dashfold/dashfold/api"
	"github.com/dashfold/dashfold/internal/registry"
	"github.com/dashfold/dashfold/internal/store"
)

// UndeployExt marks a file whose presence undeploys the matching data set.
const UndeployExt = ".undeploy"

const deployAuthor = "---"

// record pairs a deployed definition with a snapshot of when it was
// registered. It is replaced, never mutated, on redeploy.
type record struct {
	def     *api.DataSetDef
	path    string
	regTime time.Time
}

// outdated reports whether the source file changed after registration.
// A stat failure (file deleted since) counts as not outdated.
func (r *record) outdated() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		return false
	}
	return info.ModTime().After(r.regTime)
}

// Deployer polls a directory and pushes adds/updates/removals into the
// registry. One background goroutine per running deployer; Stop clears the
// directory, which the loop observes at its next wake.
type Deployer struct {
	reg     registry.DataSetDefRegistry
	log     *zap.Logger
	polling time.Duration

	mu        sync.Mutex
	directory string
	deployed  map[string]*record
	stop      chan struct{}
	done      chan struct{}
}

// New returns a stopped deployer. A polling interval of zero means Deploy
// performs a single reconciliation pass and never polls.
func New(reg registry.DataSetDefRegistry, log *zap.Logger, polling time.Duration) *Deployer {
	return &Deployer{
		reg:      reg,
		log:      log,
		polling:  polling,
		deployed: make(map[string]*record),
	}
}

// Running reports whether a deployment directory is set.
func (d *Deployer) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.directory != ""
}

// Directory returns the watched directory, blank when stopped.
func (d *Deployer) Directory() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.directory
}

// Deploy validates dir, performs one immediate reconciliation pass, and,
// with a positive polling interval, starts the background loop. An invalid
// directory logs a warning and leaves the deployer stopped.
func (d *Deployer) Deploy(dir string) {
	if !validDirectory(dir) {
		d.log.Warn("data set deployment directory invalid", zap.String("dir", dir))
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.directory != "" {
		d.log.Warn("deployer already running", zap.String("dir", d.directory))
		return
	}
	d.log.Info("data set deployment directory", zap.String("dir", dir))
	d.directory = dir
	d.reconcileLocked()

	if d.polling > 0 {
		d.stop = make(chan struct{})
		d.done = make(chan struct{})
		go d.loop(d.stop, d.done)
	}
}

// Stop clears the deployment directory and waits for the background loop to
// exit. An in-flight reconciliation pass completes normally first.
func (d *Deployer) Stop() {
	d.mu.Lock()
	d.directory = ""
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (d *Deployer) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	timer := time.NewTimer(d.polling)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			d.mu.Lock()
			if d.directory == "" {
				d.mu.Unlock()
				return
			}
			d.reconcileLocked()
			d.mu.Unlock()
			timer.Reset(d.polling)
		}
	}
}

// Reconcile performs one pass outside the polling cadence. Used at startup
// and by tests; serialized with Deploy/Stop and the background loop.
func (d *Deployer) Reconcile() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reconcileLocked()
}

// reconcileLocked is the single reconciliation pass. Callers hold d.mu, so
// overlapping timer fires and control calls cannot interleave.
func (d *Deployer) reconcileLocked() {
	if d.directory == "" {
		return
	}
	entries, err := os.ReadDir(d.directory)
	if err != nil {
		d.log.Error("deployment directory unreadable",
			zap.String("dir", d.directory), zap.Error(err))
		return
	}

	// Deployments and updates. Per-file errors skip only that file.
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), store.DatasetExt) {
			continue
		}
		if err := d.deployFile(e.Name()); err != nil {
			d.log.Error("error parsing the data set definition file",
				zap.String("file", e.Name()), zap.Error(err))
		}
	}

	// Undeploy markers.
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), UndeployExt) {
			continue
		}
		d.undeployFile(e.Name())
	}
}

func (d *Deployer) deployFile(name string) error {
	// Skip fresh, already-deployed files.
	prev := d.deployed[name]
	if prev != nil && !prev.outdated() {
		return nil
	}

	path := filepath.Join(d.directory, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	def, err := api.UnmarshalDef(data)
	if err != nil {
		return err
	}
	if strings.TrimSpace(def.UUID) == "" {
		def.UUID = name
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	def.SourcePath = abs

	existing := d.reg.GetDataSetDef(def.UUID)
	if existing != nil && api.DefsEqual(existing, def) {
		// No real change: refresh the record, skip re-registration.
		d.deployed[name] = &record{def: existing, path: path, regTime: time.Now()}
		d.log.Info("data set found", zap.String("uuid", def.UUID))
		return nil
	}

	d.deployed[name] = &record{def: def, path: path, regTime: time.Now()}
	if prev == nil {
		if err := d.reg.RegisterDataSetDef(def, deployAuthor, "deploy("+def.UUID+")"); err != nil {
			return err
		}
		d.log.Info("data set deployed", zap.String("uuid", def.UUID))
	} else {
		if err := d.reg.RegisterDataSetDef(def, deployAuthor, "redeploy("+def.UUID+")"); err != nil {
			return err
		}
		d.log.Info("data set re-deployed", zap.String("uuid", def.UUID))
	}
	return nil
}

func (d *Deployer) undeployFile(name string) {
	path := filepath.Join(d.directory, name)
	if err := os.Remove(path); err != nil {
		// Removal is retried on the next pass; only a successful delete
		// triggers the undeploy.
		d.log.Error("cannot delete undeploy marker",
			zap.String("file", name), zap.Error(err))
		return
	}

	key := strings.TrimSuffix(name, UndeployExt) + store.DatasetExt
	rec, ok := d.deployed[key]
	delete(d.deployed, key)
	if !ok {
		return
	}

	if _, err := d.reg.RemoveDataSetDef(rec.def.UUID, deployAuthor, "undeploy("+rec.def.UUID+")"); err != nil {
		d.log.Error("data set removal failed",
			zap.String("uuid", rec.def.UUID), zap.Error(err))
		return
	}
	d.log.Info("data set removed", zap.String("uuid", rec.def.UUID))
}

func validDirectory(dir string) bool {
	if strings.TrimSpace(dir) == "" {
		return false
	}
	info, err := os.Stat(dir)
	if err != nil {
		return false
	}
	return info.IsDir()
}
