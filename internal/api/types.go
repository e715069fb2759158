package api

import "encoding/json"

// QueueItem is one pending run spec claimed from a run queue, together with
// the queue metadata needed to dispatch and acknowledge it. The queue service
// is the source of truth for claims; a popped item is already claimed by this
// client and is never handed to another consumer.
type QueueItem struct {
	ID      string          `json:"id"`
	Queue   string          `json:"queue"`
	Entity  string          `json:"entity"`
	Project string          `json:"project"`
	RunSpec json.RawMessage `json:"run_spec"`
}

// QueueResponse is the service acknowledgement for a pushed run spec.
type QueueResponse struct {
	ItemID string `json:"item_id"`
	Queue  string `json:"queue"`
}

// popRequest is the body of a queue pop call.
type popRequest struct {
	Entity  string   `json:"entity"`
	Project string   `json:"project"`
	Queues  []string `json:"queues,omitempty"`
}

// statusReport is the body of a run status report.
type statusReport struct {
	Status string `json:"status"`
}
