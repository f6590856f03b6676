package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCmd     = "CMD"
	TypeAck     = "ACK"
	TypeEvent   = "EVENT"
)

// War commands carried by CMD messages.
const (
	CmdDeclareWar    = "DECLARE_WAR"
	CmdEndWar        = "END_WAR"
	CmdWarStatus     = "WAR_STATUS"
	CmdRequestBypass = "REQUEST_BYPASS"
	CmdInviteAlly    = "INVITE_ALLY"
	CmdOptIn         = "OPT_IN"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
