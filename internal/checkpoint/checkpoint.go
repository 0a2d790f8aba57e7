package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// GlobalsData is section 1 of the globals blob: process-wide state
// shared by every rank/thread, persisted once per checkpoint.
type GlobalsData struct {
	Ranks, Threads   int
	SearchPaths      string
	BaseTimeString   string
	OutputDirectory  string
	Prefix           string
	Verbose          bool
	GlobalsFileName  string
	CheckpointPrefix string
}

func (g *GlobalsData) Serialize(s *Serializer) {
	s.Int(&g.Ranks)
	s.Int(&g.Threads)
	s.String(&g.SearchPaths)
	s.String(&g.BaseTimeString)
	s.String(&g.OutputDirectory)
	s.String(&g.Prefix)
	s.Bool(&g.Verbose)
	s.String(&g.GlobalsFileName)
	s.String(&g.CheckpointPrefix)
}

// PartitionState is section B of the per-partition blob: everything
// needed to reconstruct a partition's run-loop bookkeeping before any
// component is restored.
type PartitionState struct {
	NumRanks          int
	MyRank            int
	CurrentSimCycle   uint64
	MinPart           uint64
	EndSimCycle       uint64
	EndSim            bool
	Independent       bool
	RunMode           string
	CurrentPriority   int
	OutputDirectory   string
}

func (p *PartitionState) Serialize(s *Serializer) {
	s.Int(&p.NumRanks)
	s.Int(&p.MyRank)
	s.Uint64(&p.CurrentSimCycle)
	s.Uint64(&p.MinPart)
	s.Uint64(&p.EndSimCycle)
	s.Bool(&p.EndSim)
	s.Bool(&p.Independent)
	s.String(&p.RunMode)
	s.Int(&p.CurrentPriority)
	s.String(&p.OutputDirectory)
}

// ComponentBlob is one section-D record: a component's identity plus
// whatever opaque payload its own Serializable produced.
type ComponentBlob struct {
	ComponentID string
	Name        string
	Payload     []byte
}

func (c *ComponentBlob) Serialize(s *Serializer) {
	s.String(&c.ComponentID)
	s.String(&c.Name)
	s.RawBytes(&c.Payload)
}

// PartitionBlob is the full per-partition binary blob: loaded
// libraries, partition state, and every component's serialized graph.
type PartitionBlob struct {
	LoadedLibraries []string
	State           PartitionState
	Components      []ComponentBlob
}

// WritePartitionBlob packs b into SST's section A/B/C/D layout:
// [size:u64][libraries][size:u64][state][count:u64][size:u64][component]...
func WritePartitionBlob(w io.Writer, b *PartitionBlob) error {
	if err := writeSizedSection(w, func(s *Serializer) {
		n := len(b.LoadedLibraries)
		s.Int(&n)
		for i := range b.LoadedLibraries {
			s.String(&b.LoadedLibraries[i])
		}
	}); err != nil {
		return fmt.Errorf("%w: write loaded-libraries section: %v", ErrCheckpoint, err)
	}

	if err := writeSizedSection(w, func(s *Serializer) { b.State.Serialize(s) }); err != nil {
		return fmt.Errorf("%w: write partition-state section: %v", ErrCheckpoint, err)
	}

	count := uint64(len(b.Components))
	if err := writeUint64(w, count); err != nil {
		return fmt.Errorf("%w: write component count: %v", ErrCheckpoint, err)
	}
	for i := range b.Components {
		comp := &b.Components[i]
		if err := writeSizedSection(w, func(s *Serializer) { comp.Serialize(s) }); err != nil {
			return fmt.Errorf("%w: write component %s: %v", ErrCheckpoint, comp.ComponentID, err)
		}
	}
	return nil
}

// ReadPartitionBlob reverses WritePartitionBlob.
func ReadPartitionBlob(r io.Reader) (*PartitionBlob, error) {
	b := &PartitionBlob{}

	libPayload, err := readSizedSection(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read loaded-libraries section: %v", ErrCheckpoint, err)
	}
	{
		s := NewUnpacker(libPayload)
		var n int
		s.Int(&n)
		b.LoadedLibraries = make([]string, n)
		for i := range b.LoadedLibraries {
			s.String(&b.LoadedLibraries[i])
		}
	}

	statePayload, err := readSizedSection(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read partition-state section: %v", ErrCheckpoint, err)
	}
	NewUnpacker(statePayload).let(func(s *Serializer) { b.State.Serialize(s) })

	count, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read component count: %v", ErrCheckpoint, err)
	}
	b.Components = make([]ComponentBlob, count)
	for i := range b.Components {
		payload, err := readSizedSection(r)
		if err != nil {
			return nil, fmt.Errorf("%w: read component %d: %v", ErrCheckpoint, i, err)
		}
		NewUnpacker(payload).let(func(s *Serializer) { b.Components[i].Serialize(s) })
	}
	return b, nil
}

func writeSizedSection(w io.Writer, fn func(*Serializer)) error {
	s := NewPacker()
	fn(s)
	payload := s.Bytes()
	if err := writeUint64(w, uint64(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readSizedSection(r io.Reader) ([]byte, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Writer orchestrates a full checkpoint: one registry file plus a
// globals blob and one blob per (rank, thread).
type Writer struct {
	Dir    string
	Prefix string
}

// WriteCheckpoint writes the registry, globals blob, and the given
// per-partition blobs (keyed by rank:thread) to w.Dir, returning the
// registry's path.
func (w *Writer) WriteCheckpoint(id string, simTime, elapsed string, globals GlobalsData, blobs map[[2]int]*PartitionBlob) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create checkpoint dir: %v", ErrCheckpoint, err)
	}

	globalsPath := filepath.Join(w.Dir, w.Prefix+".globals")
	if err := writeFileSection(globalsPath, func(f io.Writer) error {
		return writeSizedSection(f, func(s *Serializer) { globals.Serialize(s) })
	}); err != nil {
		return "", err
	}

	reg := &Registry{
		CheckpointID:     id,
		SimTime:          simTime,
		ElapsedTime:      elapsed,
		Ranks:            globals.Ranks,
		Threads:          globals.Threads,
		SearchPaths:      globals.SearchPaths,
		BaseTime:         globals.BaseTimeString,
		OutputDir:        globals.OutputDirectory,
		Prefix:           globals.Prefix,
		Verbose:          globals.Verbose,
		GlobalsFile:      filepath.Base(globalsPath),
		CheckpointPrefix: w.Prefix,
	}

	for rt, blob := range blobs {
		rank, thread := rt[0], rt[1]
		blobName := fmt.Sprintf("%s.%d_%d.blob", w.Prefix, rank, thread)
		blobPath := filepath.Join(w.Dir, blobName)

		var offsets []ComponentEntry
		if err := writeFileSection(blobPath, func(f io.Writer) error {
			return writePartitionBlobWithOffsets(f, blob, &offsets)
		}); err != nil {
			return "", err
		}

		reg.Sections = append(reg.Sections, BlobSection{
			Rank: rank, Thread: thread, BlobPath: blobName, Components: offsets,
		})
	}

	regPath := filepath.Join(w.Dir, w.Prefix+".registry")
	if err := writeFileSection(regPath, func(f io.Writer) error { return WriteRegistry(f, reg) }); err != nil {
		return "", err
	}
	return regPath, nil
}

// writePartitionBlobWithOffsets writes a blob exactly like
// WritePartitionBlob but additionally records each component's byte
// offset for the registry's per-component index.
func writePartitionBlobWithOffsets(w io.Writer, b *PartitionBlob, offsets *[]ComponentEntry) error {
	counter := &countingWriter{w: w}
	if err := writeSizedSection(counter, func(s *Serializer) {
		n := len(b.LoadedLibraries)
		s.Int(&n)
		for i := range b.LoadedLibraries {
			s.String(&b.LoadedLibraries[i])
		}
	}); err != nil {
		return err
	}
	if err := writeSizedSection(counter, func(s *Serializer) { b.State.Serialize(s) }); err != nil {
		return err
	}
	count := uint64(len(b.Components))
	if err := writeUint64(counter, count); err != nil {
		return err
	}
	for i := range b.Components {
		comp := &b.Components[i]
		off := counter.n
		if err := writeSizedSection(counter, func(s *Serializer) { comp.Serialize(s) }); err != nil {
			return err
		}
		*offsets = append(*offsets, ComponentEntry{ComponentID: comp.ComponentID, Offset: off, Name: comp.Name})
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeFileSection(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrCheckpoint, path, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrCheckpoint, path, err)
	}
	return nil
}

// let runs fn against s; a small readability helper so call sites
// reading two payloads in a row don't need an intermediate variable.
func (s *Serializer) let(fn func(*Serializer)) { fn(s) }

// Now records a wall-clock timestamp string suitable for the
// registry header's elapsed-time field.
func Now() string { return time.Now().UTC().Format(time.RFC3339) }
