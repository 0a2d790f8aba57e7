package exitcoord

import "testing"

func TestSinglePartitionReachesZero(t *testing.T) {
	e := New(2, nil)
	fired := false
	e.OnGlobalZero(func() { fired = true })

	e.Release()
	if g, err := e.Check(); err != nil || g != 1 || fired {
		t.Fatalf("after one release: global=%d err=%v fired=%v, want 1,nil,false", g, err, fired)
	}
	e.Release()
	if g, err := e.Check(); err != nil || g != 0 || !fired {
		t.Fatalf("after two releases: global=%d err=%v fired=%v, want 0,nil,true", g, err, fired)
	}
}

func TestHoldReopensTheRun(t *testing.T) {
	e := New(1, nil)
	e.Release()
	if e.Local() != 0 {
		t.Fatalf("Local() = %d, want 0", e.Local())
	}
	e.Hold()
	if e.Local() != 1 {
		t.Fatalf("Local() after Hold = %d, want 1", e.Local())
	}
}

func TestMultiPartitionReductionGatesZero(t *testing.T) {
	otherPartitionCount := int64(3)
	reduce := func(local int64) (int64, error) {
		return local + otherPartitionCount, nil
	}
	e := New(1, reduce)
	e.Release()
	fired := false
	e.OnGlobalZero(func() { fired = true })
	g, err := e.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if g != 3 || fired {
		t.Fatalf("global = %d fired=%v, want 3 and not fired (other partitions still hold)", g, fired)
	}
}
