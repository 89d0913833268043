// internal/game/messages.go
package game

// Inbound message types.
const (
	MsgAuthenticate    = "authenticate"
	MsgAuthToken       = "auth_token"
	MsgRegister        = "register"
	MsgLogin           = "login"
	MsgSelectCard      = "select_card"
	MsgConfirmCard     = "confirm_card"
	MsgClaimWin        = "claim_win"
	MsgGetBalance      = "get_balance"
	MsgGetGameHistory  = "get_game_history"
	MsgGetTransactions = "get_transactions"
	MsgPing            = "ping"
)

// ClientMessage is any message a client sends. Fields irrelevant to Type are ignored.
type ClientMessage struct {
	Type string `json:"type"`

	// authenticate: identity is the chat platform user id.
	Identity    string `json:"identity,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	// auth_token
	Token string `json:"token,omitempty"`

	// register, login
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// select_card, confirm_card, claim_win
	CardID int `json:"cardId,omitempty"`
}
