package out

import "testing"

func TestChunkJobJobIDDefaultsEmptyCursorToStart(t *testing.T) {
	j := ChunkJob{SessionID: "sess-1", Phase: "list"}
	if got, want := j.JobID(), "sess-1:list:start"; got != want {
		t.Errorf("JobID() = %q, want %q", got, want)
	}
}

func TestChunkJobJobIDIncludesCursor(t *testing.T) {
	j := ChunkJob{SessionID: "sess-1", Phase: "fetch", Cursor: "uid-42"}
	if got, want := j.JobID(), "sess-1:fetch:uid-42"; got != want {
		t.Errorf("JobID() = %q, want %q", got, want)
	}
}

func TestChunkJobJobIDIgnoresRetries(t *testing.T) {
	a := ChunkJob{SessionID: "sess-1", Phase: "fetch", Cursor: "uid-42", Retries: 0}
	b := ChunkJob{SessionID: "sess-1", Phase: "fetch", Cursor: "uid-42", Retries: 3}
	if a.JobID() != b.JobID() {
		t.Errorf("JobID() should be stable across retries: %q != %q", a.JobID(), b.JobID())
	}
}
