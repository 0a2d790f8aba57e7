package checkpoint

import (
	"bytes"
	"testing"
)

func samplePartitionBlob() *PartitionBlob {
	return &PartitionBlob{
		LoadedLibraries: []string{"clockgen.so", "counter.so"},
		State: PartitionState{
			NumRanks:        2,
			MyRank:          0,
			CurrentSimCycle: 150000,
			MinPart:         1000,
			EndSimCycle:     1000000,
			EndSim:          false,
			Independent:     false,
			RunMode:         "run",
			CurrentPriority: 50,
			OutputDirectory: "/tmp/out",
		},
		Components: []ComponentBlob{
			{ComponentID: "0x1", Name: "clock_source", Payload: []byte{1, 2, 3, 4}},
			{ComponentID: "0x2", Name: "counter", Payload: []byte{}},
		},
	}
}

func TestPartitionBlobRoundTrip(t *testing.T) {
	want := samplePartitionBlob()
	var buf bytes.Buffer
	if err := WritePartitionBlob(&buf, want); err != nil {
		t.Fatalf("WritePartitionBlob: %v", err)
	}

	got, err := ReadPartitionBlob(&buf)
	if err != nil {
		t.Fatalf("ReadPartitionBlob: %v", err)
	}

	if len(got.LoadedLibraries) != len(want.LoadedLibraries) {
		t.Fatalf("libraries = %v, want %v", got.LoadedLibraries, want.LoadedLibraries)
	}
	for i := range want.LoadedLibraries {
		if got.LoadedLibraries[i] != want.LoadedLibraries[i] {
			t.Fatalf("library %d = %s, want %s", i, got.LoadedLibraries[i], want.LoadedLibraries[i])
		}
	}

	if got.State != want.State {
		t.Fatalf("state = %+v, want %+v", got.State, want.State)
	}

	if len(got.Components) != len(want.Components) {
		t.Fatalf("component count = %d, want %d", len(got.Components), len(want.Components))
	}
	for i := range want.Components {
		g, w := got.Components[i], want.Components[i]
		if g.ComponentID != w.ComponentID || g.Name != w.Name || !bytes.Equal(g.Payload, w.Payload) {
			t.Fatalf("component %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestWriteCheckpointAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	globals := GlobalsData{
		Ranks:            1,
		Threads:          1,
		SearchPaths:      "/opt/lib",
		BaseTimeString:   "1ps",
		OutputDirectory:  dir,
		Prefix:           "run",
		Verbose:          false,
		GlobalsFileName:  "run.globals",
		CheckpointPrefix: "run",
	}
	blob := samplePartitionBlob()
	blob.State.MyRank = 0
	blob.State.NumRanks = 1

	w := &Writer{Dir: dir, Prefix: "run"}
	regPath, err := w.WriteCheckpoint("ckpt-1", "150000", Now(), globals, map[[2]int]*PartitionBlob{
		{0, 0}: blob,
	})
	if err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}
	if regPath == "" {
		t.Fatal("WriteCheckpoint returned empty registry path")
	}

	var loadedLibs []string
	var loadedComponents []ComponentBlob

	r := &Restorer{Dir: dir}
	result, err := r.Restore(0, 0,
		func(name string) error { loadedLibs = append(loadedLibs, name); return nil },
		func(cb ComponentBlob) error { loadedComponents = append(loadedComponents, cb); return nil },
	)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if result.Globals.SearchPaths != globals.SearchPaths || result.Globals.BaseTimeString != globals.BaseTimeString {
		t.Fatalf("restored globals = %+v, want %+v", result.Globals, globals)
	}
	if result.Partition.State != blob.State {
		t.Fatalf("restored partition state = %+v, want %+v", result.Partition.State, blob.State)
	}
	if len(loadedLibs) != len(blob.LoadedLibraries) {
		t.Fatalf("loaded %d libraries, want %d", len(loadedLibs), len(blob.LoadedLibraries))
	}
	if len(loadedComponents) != len(blob.Components) {
		t.Fatalf("loaded %d components, want %d", len(loadedComponents), len(blob.Components))
	}

	if err := ValidateRankThread(result.Registry, 1, 1); err != nil {
		t.Fatalf("ValidateRankThread: %v", err)
	}
	if err := ValidateRankThread(result.Registry, 2, 1); err == nil {
		t.Fatal("ValidateRankThread should reject a mismatched rank count")
	}

	if err := ValidateBaseTime(result.Registry, "1ps"); err != nil {
		t.Fatalf("ValidateBaseTime: %v", err)
	}
	if err := ValidateBaseTime(result.Registry, "1ns"); err == nil {
		t.Fatal("ValidateBaseTime should reject a mismatched base time")
	}
}

func TestRestoreMissingRegistryErrors(t *testing.T) {
	dir := t.TempDir()
	r := &Restorer{Dir: dir}
	if _, err := r.Restore(0, 0, nil, nil); err == nil {
		t.Fatal("Restore should error when no registry file exists")
	}
}
