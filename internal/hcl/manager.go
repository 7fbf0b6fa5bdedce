package hcl

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flanksource/commons/logger"
)

const (
	mainFileName    = "main.tf"
	importsFileName = "imports.tf"

	providerStanza = `terraform {
  required_providers {
    scalr = {
      source = "scalr/scalr"
    }
  }
}

`
)

type recordKey struct {
	Kind Kind
	Type string
	Name string
}

// Manager owns the artifact directory. It tracks every record declared for
// the current run, recognizes records that survived from earlier runs, and
// guarantees a (kind, type, name) triple is declared at most once.
type Manager struct {
	dir     string
	records []*Record
	index   map[recordKey]*Record
}

// NewManager prepares the artifact directory and loads records from an
// existing configuration so reruns never redeclare them.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}

	m := &Manager{
		dir:   dir,
		index: map[recordKey]*Record{},
	}

	loaded, err := m.scanMainFile()
	if err != nil {
		return nil, err
	}
	for _, rec := range loaded {
		m.records = append(m.records, rec)
		m.index[keyOf(rec)] = rec
	}
	if len(loaded) > 0 {
		logger.Debugf("loaded %d existing records from %s", len(loaded), filepath.Join(dir, mainFileName))
	}
	return m, nil
}

func keyOf(r *Record) recordKey {
	return recordKey{Kind: r.Kind, Type: r.Type, Name: r.Name}
}

func (m *Manager) Dir() string {
	return m.dir
}

// Add registers a record unless its triple is already tracked, and returns
// the canonical record for that triple. Callers must keep using the returned
// pointer so attribute updates land on the declared block.
func (m *Manager) Add(r *Record) *Record {
	key := keyOf(r)
	if existing, ok := m.index[key]; ok {
		return existing
	}
	m.records = append(m.records, r)
	m.index[key] = r
	return r
}

func (m *Manager) Has(kind Kind, recordType, name string) bool {
	_, ok := m.index[recordKey{Kind: kind, Type: recordType, Name: NormalizeName(name)}]
	return ok
}

// Lookup finds a record of the given type by name, regardless of kind.
// Data sources win over resources, mirroring how references are resolved.
func (m *Manager) Lookup(recordType, name string) *Record {
	normalized := NormalizeName(name)
	if rec, ok := m.index[recordKey{Kind: KindData, Type: recordType, Name: normalized}]; ok {
		return rec
	}
	if rec, ok := m.index[recordKey{Kind: KindResource, Type: recordType, Name: normalized}]; ok {
		return rec
	}
	return nil
}

// Records returns every tracked record, loaded and new.
func (m *Manager) Records() []*Record {
	return m.records
}

func (m *Manager) scanMainFile() ([]*Record, error) {
	path := filepath.Join(m.dir, mainFileName)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ScanRecords(string(content)), nil
}

// Write flushes the artifact: new records are appended to the configuration
// (existing text is never rewritten) and the import bindings file is rebuilt
// from the resources created during this run.
func (m *Manager) Write() error {
	path := filepath.Join(m.dir, mainFileName)

	var content string
	fileExists := true
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		fileExists = false
	case err != nil:
		return fmt.Errorf("reading %s: %w", path, err)
	default:
		content = string(raw)
	}

	// Records already declared on disk must not be re-emitted, even if this
	// run re-registered them.
	declared := map[recordKey]bool{}
	for _, rec := range ScanRecords(content) {
		declared[keyOf(rec)] = true
	}

	var pending []*Record
	for _, rec := range m.ordered() {
		if !declared[keyOf(rec)] {
			pending = append(pending, rec)
		}
	}

	if len(pending) > 0 || !fileExists {
		var appendText string
		if !fileExists {
			appendText = header() + providerStanza
		}
		for _, rec := range pending {
			appendText += Render(rec) + "\n"
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		if _, err := f.WriteString(appendText); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", path, err)
		}
	}

	return m.writeImports(declared)
}

// writeImports rebuilds imports.tf with a binding for every resource created
// during this run. Records that predate the run were either imported already
// or adopted, so they never reappear here.
func (m *Manager) writeImports(declared map[recordKey]bool) error {
	var b = header() +
		"# This file contains import blocks for resources.\n" +
		"# You can safely remove this file after successful import.\n\n"

	for _, rec := range m.ordered() {
		if rec.Kind != KindResource || rec.ExternalID == "" || declared[keyOf(rec)] {
			continue
		}
		b += fmt.Sprintf("import {\n  to = %s\n  id = %q\n}\n\n", rec.Address(), rec.ExternalID)
	}

	path := filepath.Join(m.dir, importsFileName)
	if err := os.WriteFile(path, []byte(b), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ordered returns data sources before resources, keeping insertion order
// within each kind, so references are declared before their users.
func (m *Manager) ordered() []*Record {
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Kind == KindData {
			out = append(out, rec)
		}
	}
	for _, rec := range m.records {
		if rec.Kind == KindResource {
			out = append(out, rec)
		}
	}
	return out
}

func header() string {
	return fmt.Sprintf("# Generated by scalr-migrate\n# Generated at: %s\n\n", time.Now().Format(time.RFC3339))
}
