package worker

import "fmt"

// State is the worker lifecycle state.
//
//	Idle -> Receiving -> Processing -> Acknowledging -> Idle
//	                     Processing -> Retrying -> Idle
//	                                   Acknowledging -> Retrying -> Idle
//
// Acknowledging publishes the result and then acks. If the publish fails the
// job was never acked, so it is requeued like a processing failure.
type State int32

const (
	StateIdle State = iota
	StateReceiving
	StateProcessing
	StateAcknowledging
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateProcessing:
		return "processing"
	case StateAcknowledging:
		return "acknowledging"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
