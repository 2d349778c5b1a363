package out

import "context"

// ChunkJob is one unit of orchestrator-enqueued work (§4.I).
type ChunkJob struct {
	SessionID string `json:"sessionId"`
	Phase     string `json:"phase"`
	Cursor    string `json:"cursor"`
	Retries   int    `json:"retries"`
}

// JobID is derived deterministically from {sessionId, phase, cursor|"start"} so
// retries and duplicate enqueues dedupe (§4.I).
func (j ChunkJob) JobID() string {
	cursor := j.Cursor
	if cursor == "" {
		cursor = "start"
	}
	return j.SessionID + ":" + j.Phase + ":" + cursor
}

// Queue is the durable work queue the orchestrator enqueues chunk jobs onto.
// Delivery is at-least-once; job ids make redundant enqueues idempotent.
type Queue interface {
	EnqueueChunk(ctx context.Context, job ChunkJob) error
}

// ChunkHandler processes one dequeued ChunkJob. Implemented by the SessionOrchestrator.
type ChunkHandler func(ctx context.Context, job ChunkJob) error
