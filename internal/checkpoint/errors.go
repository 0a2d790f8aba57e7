package checkpoint

import "errors"

// ErrCheckpoint is the sentinel for the §7 CheckpointError kind: I/O
// failures and schema mismatches while reading or writing a
// checkpoint.
var ErrCheckpoint = errors.New("checkpoint error")

// ErrRankThreadMismatch is returned when a restart's rank/thread count
// does not match the checkpoint's, which spec.md explicitly leaves as
// a non-goal to support.
var ErrRankThreadMismatch = errors.New("checkpoint error: rank/thread count mismatch on restart")

// ErrBaseTimeMismatch is returned when a restart's configured time
// base string does not match the checkpoint's recorded base time.
var ErrBaseTimeMismatch = errors.New("checkpoint error: base time string mismatch on restart")
