package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dashfold/dashfold/api"
	"github.com/dashfold/dashfold/internal/registry"
)

const (
	// DatasetExt is the file extension of definition documents.
	DatasetExt = ".dset"
	// CSVExt is the file extension of attached CSV payloads.
	CSVExt = ".csv"

	// DefaultMaxCSVLength caps attached CSV files at 1 MiB.
	DefaultMaxCSVLength = 1048576
)

// ErrCSVTooLarge is returned when an attached CSV file exceeds the
// configured maximum byte size.
var ErrCSVTooLarge = errors.New("csv file exceeds the maximum allowed size")

// DefStorage persists definitions (and attached CSV payloads) in a
// versioned file store, keeping the wrapped in-memory registry in sync.
// It satisfies registry.DataSetDefRegistry, so callers that only need the
// registry surface see no difference from the plain in-memory one.
//
// Known limitation: registering a CSV-backed definition writes the JSON
// document before copying the CSV payload. If the CSV copy fails (size cap,
// I/O), the JSON write has already landed in the batch; the error surfaces
// and the caller must clean up.
type DefStorage struct {
	reg    *registry.Memory
	vfs    VersionedFS
	log    *zap.Logger
	maxCSV int64
}

// New wires a DefStorage over the given versioned store and registry.
// maxCSV <= 0 selects DefaultMaxCSVLength.
func New(reg *registry.Memory, vfs VersionedFS, log *zap.Logger, maxCSV int64) *DefStorage {
	if maxCSV <= 0 {
		maxCSV = DefaultMaxCSVLength
	}
	return &DefStorage{reg: reg, vfs: vfs, log: log, maxCSV: maxCSV}
}

// Init rebuilds the in-memory registry from the store's file tree.
func (s *DefStorage) Init() error {
	defs, err := s.ListDataSetDefs()
	if err != nil {
		return err
	}
	for _, def := range defs {
		s.reg.Seed(def)
	}
	s.log.Info("data set registry loaded", zap.Int("definitions", len(defs)))
	return nil
}

// RegisterDataSetDef writes the definition document at its resolved store
// path (assigning one on first save), copies the attached CSV payload for
// CSV-backed kinds, and updates the in-memory registry. The whole operation
// commits as one change set, attributed when author and message are given.
func (s *DefStorage) RegisterDataSetDef(def *api.DataSetDef, author, message string) (err error) {
	if def.UUID == "" {
		def.UUID = uuid.NewString()
	}

	s.vfs.StartBatch(author, message)
	defer func() {
		if cerr := s.vfs.EndBatch(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err := api.MarshalDef(def)
	if err != nil {
		return fmt.Errorf("register data set %s: %w", def.UUID, err)
	}
	path := def.StorePath
	if path == "" {
		path = def.UUID + DatasetExt
	}
	if err := s.vfs.Write(path, data); err != nil {
		return fmt.Errorf("register data set %s: %w", def.UUID, err)
	}
	def.StorePath = path

	if def.IsCSV() {
		if err := s.saveCSV(def); err != nil {
			return fmt.Errorf("register data set %s: %w", def.UUID, err)
		}
	}
	return s.reg.RegisterDataSetDef(def, author, message)
}

// RemoveDataSetDef removes the definition with the given uuid from both the
// store and the registry. Returns nil when the uuid is not registered.
func (s *DefStorage) RemoveDataSetDef(uuid, author, message string) (*api.DataSetDef, error) {
	def := s.reg.GetDataSetDef(uuid)
	if def == nil {
		return nil, nil
	}
	return s.RemoveDef(def, author, message)
}

// RemoveDef removes a loaded definition. A definition that was never
// persisted (no store path) is dropped from the in-memory index with no
// file I/O at all.
func (s *DefStorage) RemoveDef(def *api.DataSetDef, author, message string) (*api.DataSetDef, error) {
	if def.StorePath != "" && s.vfs.Exists(def.StorePath) {
		if err := s.removeFiles(def, author, message); err != nil {
			return nil, err
		}
	}
	return s.reg.RemoveDataSetDef(def.UUID, author, message)
}

func (s *DefStorage) removeFiles(def *api.DataSetDef, author, message string) (err error) {
	s.vfs.StartBatch(author, message)
	defer func() {
		if cerr := s.vfs.EndBatch(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := s.vfs.Delete(def.StorePath); err != nil {
		return fmt.Errorf("remove data set %s: %w", def.UUID, err)
	}
	if def.IsCSV() {
		if err := s.deleteCSV(def); err != nil {
			return fmt.Errorf("remove data set %s: %w", def.UUID, err)
		}
	}
	return nil
}

// GetDataSetDef returns the in-memory registry entry for uuid, or nil.
func (s *DefStorage) GetDataSetDef(uuid string) *api.DataSetDef {
	return s.reg.GetDataSetDef(uuid)
}

// ListDataSetDefs walks the store's file tree and parses every definition
// document found. A read or parse error for any individual file terminates
// the walk: the error is logged and returned, and partial results are
// discarded.
func (s *DefStorage) ListDataSetDefs() ([]*api.DataSetDef, error) {
	var result []*api.DataSetDef
	err := s.vfs.WalkFiles(func(path string, info os.FileInfo) error {
		if !strings.HasSuffix(info.Name(), DatasetExt) {
			return nil
		}
		def, err := s.readDef(path)
		if err != nil {
			return err
		}
		result = append(result, def)
		return nil
	})
	if err != nil {
		s.log.Error("data set definition read error", zap.Error(err))
		return nil, fmt.Errorf("list data sets: %w", err)
	}
	return result, nil
}

// LoadDataSetDef reads and parses a single definition document by store
// path. Returns nil when the path does not exist.
func (s *DefStorage) LoadDataSetDef(path string) (*api.DataSetDef, error) {
	if !s.vfs.Exists(path) {
		return nil, nil
	}
	def, err := s.readDef(path)
	if err != nil {
		return nil, fmt.Errorf("load data set %s: %w", path, err)
	}
	return def, nil
}

func (s *DefStorage) readDef(path string) (*api.DataSetDef, error) {
	data, err := s.vfs.ReadAll(path)
	if err != nil {
		return nil, err
	}
	def, err := api.UnmarshalDef(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.StorePath = path
	return def, nil
}

//
// Attached CSV files
//

// GetCSVStream returns a reader over the definition's attached CSV payload,
// or nil when there is none.
func (s *DefStorage) GetCSVStream(def *api.DataSetDef) (io.ReadCloser, error) {
	path := def.UUID + CSVExt
	if !s.vfs.Exists(path) {
		return nil, nil
	}
	data, err := s.vfs.ReadAll(path)
	if err != nil {
		return nil, fmt.Errorf("csv for data set %s: %w", def.UUID, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// SaveCSVFile copies the CSV file referenced by the definition's source
// path into the store, as its own change set. A blank or missing source
// path is a no-op.
func (s *DefStorage) SaveCSVFile(def *api.DataSetDef, author, message string) (err error) {
	s.vfs.StartBatch(author, message)
	defer func() {
		if cerr := s.vfs.EndBatch(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return s.saveCSV(def)
}

// DeleteCSVFile removes the definition's attached CSV payload, as its own
// change set.
func (s *DefStorage) DeleteCSVFile(def *api.DataSetDef, author, message string) (err error) {
	s.vfs.StartBatch(author, message)
	defer func() {
		if cerr := s.vfs.EndBatch(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return s.deleteCSV(def)
}

// saveCSV enforces the size cap and copies the source bytes verbatim.
// It must run inside an open batch.
func (s *DefStorage) saveCSV(def *api.DataSetDef) error {
	src := def.FilePath
	if strings.TrimSpace(src) == "" {
		return nil
	}
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("csv source %s: %w", src, err)
	}
	if info.Size() > s.maxCSV {
		return fmt.Errorf("csv source %s is %d bytes, cap is %d: %w",
			src, info.Size(), s.maxCSV, ErrCSVTooLarge)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("csv source %s: %w", src, err)
	}
	return s.vfs.Write(def.UUID+CSVExt, data)
}

// deleteCSV must run inside an open batch.
func (s *DefStorage) deleteCSV(def *api.DataSetDef) error {
	path := def.UUID + CSVExt
	if !s.vfs.Exists(path) {
		return nil
	}
	return s.vfs.Delete(path)
}

var _ registry.DataSetDefRegistry = (*DefStorage)(nil)
