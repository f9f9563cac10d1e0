package model

// Event is an inbound webhook envelope recorded for audit.
type Event struct {
	Type    string
	Action  string
	TaskID  int64
	Payload []byte
}
