package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
)

// ComponentLoader re-creates a component's ComponentInfo+instance
// graph from a ComponentBlob's opaque payload. It is supplied by the
// simulation driver, which knows how to dispatch on the component
// kind recorded inside the payload and call back into the factory.
type ComponentLoader func(blob ComponentBlob) error

// LibraryLoader loads a plugin library by name through the factory,
// before any component deserialization begins.
type LibraryLoader func(name string) error

// Restorer drives the restart sequence documented in spec.md §4.7:
// read the registry, load libraries, rebuild partition state, rebuild
// components, then hand back to the caller for the link/sync fix-up
// steps that need live component references this package does not
// hold.
type Restorer struct {
	Dir string
}

// RestoreResult carries what the restart sequence recovered, for the
// simulation driver to finish wiring (link handler fix-up and
// SyncLink pair resolution — steps 5 and 6 — happen in the driver
// since they need live handler/link values this package never sees).
type RestoreResult struct {
	Registry       *Registry
	Globals        GlobalsData
	Partition      PartitionBlob
}

// Restore performs steps 1-4 of the restart sequence for the given
// (rank, thread): locate the blob via the registry, load its
// libraries, decode partition state, and invoke loadComponent for
// every recorded component.
func (r *Restorer) Restore(rank, thread int, loadLib LibraryLoader, loadComponent ComponentLoader) (*RestoreResult, error) {
	regPath, err := r.findRegistryFile()
	if err != nil {
		return nil, err
	}
	regFile, err := os.Open(regPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open registry %s: %v", ErrCheckpoint, regPath, err)
	}
	defer regFile.Close()

	reg, err := ReadRegistry(regFile)
	if err != nil {
		return nil, err
	}

	// Step 1: find this (rank, thread)'s blob filename.
	section, err := reg.Find(rank, thread)
	if err != nil {
		return nil, err
	}

	globals, err := r.readGlobals(reg)
	if err != nil {
		return nil, err
	}

	blobPath := filepath.Join(r.Dir, section.BlobPath)
	blobFile, err := os.Open(blobPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open blob %s: %v", ErrCheckpoint, blobPath, err)
	}
	defer blobFile.Close()

	partition, err := ReadPartitionBlob(blobFile)
	if err != nil {
		return nil, err
	}

	// Step 2: load every recorded library before any component is
	// deserialized, since component instances may depend on symbols
	// those libraries register with the factory.
	if loadLib != nil {
		for _, lib := range partition.LoadedLibraries {
			if err := loadLib(lib); err != nil {
				return nil, fmt.Errorf("%w: load library %s: %v", ErrCheckpoint, lib, err)
			}
		}
	}

	// Step 3: partition state (section B) is already decoded into
	// partition.State by ReadPartitionBlob; the caller (the
	// simulation driver) constructs a fresh sync manager, heartbeat,
	// checkpoint action, and TimeVortex from it — this package does
	// not own those types and only hands back the decoded values.

	// Step 4: re-create each component's ComponentInfo+instance graph.
	if loadComponent != nil {
		for _, comp := range partition.Components {
			if err := loadComponent(comp); err != nil {
				return nil, fmt.Errorf("%w: load component %s (%s): %v", ErrCheckpoint, comp.ComponentID, comp.Name, err)
			}
		}
	}

	return &RestoreResult{Registry: reg, Globals: *globals, Partition: *partition}, nil
}

func (r *Restorer) findRegistryFile() (string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return "", fmt.Errorf("%w: read checkpoint dir %s: %v", ErrCheckpoint, r.Dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".registry" {
			return filepath.Join(r.Dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: no .registry file in %s", ErrCheckpoint, r.Dir)
}

func (r *Restorer) readGlobals(reg *Registry) (*GlobalsData, error) {
	path := filepath.Join(r.Dir, reg.GlobalsFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open globals %s: %v", ErrCheckpoint, path, err)
	}
	defer f.Close()

	payload, err := readSizedSection(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read globals section: %v", ErrCheckpoint, err)
	}
	g := &GlobalsData{}
	NewUnpacker(payload).let(func(s *Serializer) { g.Serialize(s) })
	return g, nil
}

// ValidateRankThread enforces the invariant that a restart's rank and
// thread counts must equal those recorded at checkpoint time.
func ValidateRankThread(reg *Registry, ranks, threads int) error {
	if reg.Ranks != ranks || reg.Threads != threads {
		return fmt.Errorf("%w: checkpoint has %d ranks x %d threads, restart requested %d x %d",
			ErrRankThreadMismatch, reg.Ranks, reg.Threads, ranks, threads)
	}
	return nil
}

// ValidateBaseTime enforces the invariant that a restart's configured
// time base string must match the checkpoint's.
func ValidateBaseTime(reg *Registry, baseTime string) error {
	if reg.BaseTime != baseTime {
		return fmt.Errorf("%w: checkpoint base time %q, restart requested %q",
			ErrBaseTimeMismatch, reg.BaseTime, baseTime)
	}
	return nil
}
