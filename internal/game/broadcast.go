// internal/game/broadcast.go
package game

// GameEventType tags every outbound message.
type GameEventType string

const (
	EventInit             GameEventType = "init"               // private snapshot sent on connect
	EventAuthResult       GameEventType = "auth_result"        // private
	EventAuthError        GameEventType = "auth_error"         // private
	EventPhaseChange      GameEventType = "phase_change"       // broadcast
	EventTimerUpdate      GameEventType = "timer_update"       // broadcast
	EventNumberCalled     GameEventType = "number_called"      // broadcast
	EventAllNumbersCalled GameEventType = "all_numbers_called" // broadcast
	EventCardTaken        GameEventType = "card_taken"         // broadcast
	EventCardConfirmed    GameEventType = "card_confirmed"     // private
	EventClaimRejected    GameEventType = "claim_rejected"     // private
	EventBalanceUpdate    GameEventType = "balance_update"     // private
	EventGameHistory      GameEventType = "game_history"       // private
	EventTransactions     GameEventType = "transactions"       // private
	EventError            GameEventType = "error"              // private
	EventPong             GameEventType = "pong"               // private
)

// GameEvent is the envelope written to clients.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func errorEvent(msg string) GameEvent {
	return GameEvent{Type: EventError, Payload: map[string]interface{}{"message": msg}}
}
