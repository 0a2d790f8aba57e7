package simulation

import (
	"fmt"

	"github.com/sstgo/corevortex"
	"github.com/sstgo/corevortex/internal/checkpoint"
)

// Checkpointable is optionally implemented by a component instance so
// its internal state participates in a checkpoint. A component with
// no state beyond what its configuration already reconstructs (a
// pure combinational block) need not implement it.
type Checkpointable interface {
	Serialize(s *checkpoint.Serializer)
}

// Snapshot packs this partition's current run-loop bookkeeping plus
// every Checkpointable component's state and writes it under dir as
// prefix-named registry and blob files, returning the registry path.
// This is steps 1-3 of the checkpoint sequence; steps 4 onward (the
// matching restart) are Restore below.
func (s *Simulation) Snapshot(id, dir, prefix string) (string, error) {
	var comps []checkpoint.ComponentBlob
	for _, c := range s.components {
		cp, ok := c.Instance.(Checkpointable)
		if !ok {
			continue
		}
		packer := checkpoint.NewPacker()
		cp.Serialize(packer)
		comps = append(comps, checkpoint.ComponentBlob{
			ComponentID: c.ID.String(),
			Name:        c.Name,
			Payload:     packer.Bytes(),
		})
	}

	blob := &checkpoint.PartitionBlob{
		State: checkpoint.PartitionState{
			NumRanks:        s.transport.NumRanks(),
			MyRank:          s.Rank,
			CurrentSimCycle: s.CurrentCycle(),
			MinPart:         s.sync.MinPart(),
			RunMode:         "run",
		},
		Components: comps,
	}

	globals := checkpoint.GlobalsData{
		Ranks:            s.transport.NumRanks(),
		Threads:          1,
		BaseTimeString:   s.cfg.TimeBase,
		OutputDirectory:  s.cfg.OutputDir,
		Prefix:           s.cfg.Prefix,
		CheckpointPrefix: prefix,
	}

	w := &checkpoint.Writer{Dir: dir, Prefix: prefix}
	now := checkpoint.Now()
	path, err := w.WriteCheckpoint(id, fmt.Sprintf("%d", s.CurrentCycle()), now, globals,
		map[[2]int]*checkpoint.PartitionBlob{{s.Rank, s.Thread}: blob})
	if err != nil {
		return "", corevortex.Fatal(corevortex.CheckpointError, s.Rank, s.Thread, "snapshot write", err)
	}
	return path, nil
}

// Restore runs the restart sequence's component-rebuilding steps
// (1-4) against a checkpoint directory: it unpacks every recovered
// ComponentBlob into the matching already-constructed component via
// its Checkpointable.Serialize in Unpack mode, and then validates
// that this run's rank/thread count and time base match what was
// recorded. A mismatch is returned as an error after the components
// have already been unpacked. Link re-binding (step 5) and SyncLink pair resolution (step
// 6) were already performed by New when this Simulation was
// constructed from the same configuration, so nothing further is
// needed before Run resumes (step 7).
func (s *Simulation) Restore(dir string) error {
	restorer := &checkpoint.Restorer{Dir: dir}

	result, err := restorer.Restore(s.Rank, s.Thread,
		func(name string) error { return nil },
		func(blob checkpoint.ComponentBlob) error {
			return s.applyComponentBlob(blob)
		})
	if err != nil {
		return corevortex.Fatal(corevortex.CheckpointError, s.Rank, s.Thread, "restore", err)
	}

	if err := checkpoint.ValidateRankThread(result.Registry, s.transport.NumRanks(), 1); err != nil {
		return corevortex.Fatal(corevortex.CheckpointError, s.Rank, s.Thread, "restore rank/thread validation", err)
	}
	if err := checkpoint.ValidateBaseTime(result.Registry, s.cfg.TimeBase); err != nil {
		return corevortex.Fatal(corevortex.CheckpointError, s.Rank, s.Thread, "restore base time validation", err)
	}

	s.mu.Lock()
	s.currentCycle = result.Partition.State.CurrentSimCycle
	s.mu.Unlock()
	return nil
}

func (s *Simulation) applyComponentBlob(blob checkpoint.ComponentBlob) error {
	for _, c := range s.components {
		if c.ID.String() != blob.ComponentID {
			continue
		}
		cp, ok := c.Instance.(Checkpointable)
		if !ok {
			return fmt.Errorf("component %q has a checkpoint blob but does not implement Checkpointable", c.Name)
		}
		cp.Serialize(checkpoint.NewUnpacker(blob.Payload))
		return nil
	}
	return fmt.Errorf("checkpoint blob for unknown component %q (%s)", blob.Name, blob.ComponentID)
}
