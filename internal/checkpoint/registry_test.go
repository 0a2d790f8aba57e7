package checkpoint

import (
	"bytes"
	"testing"
)

func TestRegistryRoundTrip(t *testing.T) {
	reg := &Registry{
		CheckpointID: "ckpt-0042",
		SimTime:      "1500000",
		ElapsedTime:  "2026-07-31T12:00:00Z",
		Ranks:        2,
		Threads:      1,
		SearchPaths:  "/opt/lib:/usr/local/lib",
		BaseTime:     "1ps",
		OutputDir:    "/tmp/out",
		Prefix:       "run",
		Verbose:      true,
		GlobalsFile:  "run.globals",
		CheckpointPrefix: "run",
		Sections: []BlobSection{
			{
				Rank: 0, Thread: 0, BlobPath: "run.0_0.blob",
				Components: []ComponentEntry{
					{ComponentID: "0x1", Offset: 16, Name: "clock_source"},
					{ComponentID: "0x2", Offset: 512, Name: "counter"},
				},
			},
			{
				Rank: 1, Thread: 0, BlobPath: "run.1_0.blob",
				Components: []ComponentEntry{
					{ComponentID: "0x100000001", Offset: 16, Name: "sink"},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteRegistry(&buf, reg); err != nil {
		t.Fatalf("WriteRegistry: %v", err)
	}

	got, err := ReadRegistry(&buf)
	if err != nil {
		t.Fatalf("ReadRegistry: %v", err)
	}

	if got.CheckpointID != reg.CheckpointID || got.SimTime != reg.SimTime || got.ElapsedTime != reg.ElapsedTime {
		t.Fatalf("header identity mismatch: got %+v", got)
	}
	if got.Ranks != reg.Ranks || got.Threads != reg.Threads || got.SearchPaths != reg.SearchPaths {
		t.Fatalf("header topology mismatch: got %+v", got)
	}
	if got.BaseTime != reg.BaseTime || got.OutputDir != reg.OutputDir || got.Prefix != reg.Prefix {
		t.Fatalf("header paths mismatch: got %+v", got)
	}
	if got.Verbose != reg.Verbose || got.GlobalsFile != reg.GlobalsFile || got.CheckpointPrefix != reg.CheckpointPrefix {
		t.Fatalf("header flags mismatch: got %+v", got)
	}

	if len(got.Sections) != len(reg.Sections) {
		t.Fatalf("section count = %d, want %d", len(got.Sections), len(reg.Sections))
	}
	for i, wantSec := range reg.Sections {
		gotSec := got.Sections[i]
		if gotSec.Rank != wantSec.Rank || gotSec.Thread != wantSec.Thread || gotSec.BlobPath != wantSec.BlobPath {
			t.Fatalf("section %d = %+v, want %+v", i, gotSec, wantSec)
		}
		if len(gotSec.Components) != len(wantSec.Components) {
			t.Fatalf("section %d component count = %d, want %d", i, len(gotSec.Components), len(wantSec.Components))
		}
		for j, wantComp := range wantSec.Components {
			if gotSec.Components[j] != wantComp {
				t.Fatalf("section %d component %d = %+v, want %+v", i, j, gotSec.Components[j], wantComp)
			}
		}
	}
}

func TestRegistryFindLocatesSection(t *testing.T) {
	reg := &Registry{Sections: []BlobSection{
		{Rank: 0, Thread: 0, BlobPath: "a"},
		{Rank: 0, Thread: 1, BlobPath: "b"},
	}}

	sec, err := reg.Find(0, 1)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if sec.BlobPath != "b" {
		t.Fatalf("Find returned %+v, want blob b", sec)
	}
}

func TestRegistryFindMissingSectionErrors(t *testing.T) {
	reg := &Registry{Sections: []BlobSection{{Rank: 0, Thread: 0, BlobPath: "a"}}}
	if _, err := reg.Find(3, 0); err == nil {
		t.Fatal("Find on missing rank/thread should error")
	}
}

func TestReadRegistrySkipsBlankAndCommentLines(t *testing.T) {
	input := `## checkpoint registry
checkpoint_id: x

ranks: 1
threads: 1

** (0:0): x.0_0.blob
0x1 : 0 (alpha)
`
	reg, err := ReadRegistry(bytes.NewBufferString(input))
	if err != nil {
		t.Fatalf("ReadRegistry: %v", err)
	}
	if reg.Ranks != 1 || reg.Threads != 1 {
		t.Fatalf("header fields not parsed: %+v", reg)
	}
	if len(reg.Sections) != 1 || len(reg.Sections[0].Components) != 1 {
		t.Fatalf("section/components not parsed: %+v", reg.Sections)
	}
}
