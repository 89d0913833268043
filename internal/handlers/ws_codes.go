// internal/handlers/ws_codes.go
package handlers

import (
	"github.com/coder/websocket"
	"github.com/jason-s-yu/bingo/internal/game"
)

// Custom WebSocket close codes sent by the game endpoint.
const (
	RoundInProgressError = 3000 // connection refused while a round is being played
	SlowConsumerError    = 3001 // outbound queue overflowed; the client should reconnect
)

// closeCode picks the status for an engine-initiated close.
func closeCode(reason string) websocket.StatusCode {
	switch reason {
	case game.RoundInProgressMessage:
		return RoundInProgressError
	case slowConsumerReason:
		return SlowConsumerError
	default:
		return websocket.StatusGoingAway
	}
}
