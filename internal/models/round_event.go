package models

// RoundEvent is one entry of a round's audit trail, queued in redis and persisted by the historian.
type RoundEvent struct {
	RoundID    int64                  `json:"round_id"`
	EventIndex int                    `json:"event_index"`
	EventType  string                 `json:"event_type"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  int64                  `json:"timestamp"`
}
