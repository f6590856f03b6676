package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	PlayerName      string `json:"player_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	PlayerName      string `json:"player_name,omitempty"`
	Village         string `json:"village,omitempty"`
	Rank            string `json:"rank,omitempty"`
	Points          int    `json:"points"`
	GracePeriodMs   int64  `json:"grace_period_ms"`
}

// CMD (client -> server): a single war command.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Cmd             string `json:"cmd"`
	// Target is the counterpart player for DECLARE_WAR / END_WAR /
	// REQUEST_BYPASS / WAR_STATUS, or the candidate for INVITE_ALLY.
	Target string `json:"target,omitempty"`
}

// ACK (server -> client): result of one CMD.
type AckMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AckFor          string      `json:"ack_for"`
	OK              bool        `json:"ok"`
	Code            string      `json:"code,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// EVENT (server -> client): broadcast war lifecycle notices.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Event           string `json:"event"`
	Initiator       string `json:"initiator,omitempty"`
	Target          string `json:"target,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

// Events carried by EVENT messages.
const (
	EventWarDeclared   = "WAR_DECLARED"
	EventPeaceRestored = "PEACE_RESTORED"
	EventBypassActive  = "BYPASS_ACTIVE"
	EventAllyInvited   = "ALLY_INVITED"
)

// WarStatus is one line of the WAR_STATUS reply.
type WarStatus struct {
	Initiator        string   `json:"initiator"`
	Target           string   `json:"target"`
	DeclaredAtMs     int64    `json:"declared_at_ms"`
	GraceRemainingMs int64    `json:"grace_remaining_ms"`
	BypassActive     bool     `json:"bypass_active"`
	InitiatorAllies  []string `json:"initiator_allies,omitempty"`
	TargetAllies     []string `json:"target_allies,omitempty"`
	PendingInvites   []string `json:"pending_invites,omitempty"`
}
