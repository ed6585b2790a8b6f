package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	CharacterID     uint64      `json:"character_id"`
	Name            string      `json:"name,omitempty"`
	Pos             *[3]float64 `json:"pos,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	WorldID         string `json:"world_id"`
	CharacterID     uint64 `json:"character_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	SpeechDigest    string `json:"speech_digest"`
}

// DialogueObs is one rendered dialogue turn. Kind is the lowercase turn
// kind: start, end, statement, question, response or marker.
type DialogueObs struct {
	ID         uint64              `json:"id"`
	Kind       string              `json:"kind"`
	Text       string              `json:"text,omitempty"`
	Tag        uint32              `json:"tag,omitempty"`
	Responses  []ResponseOptionObs `json:"responses,omitempty"`
	ResponseID *uint16             `json:"response_id,omitempty"`
	Marker     *[2]float64         `json:"marker,omitempty"`
}

type ResponseOptionObs struct {
	ID   uint16 `json:"id"`
	Text string `json:"text"`
}

// DIALOGUE (server -> client)
type DialogueMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	FromNpc         uint64      `json:"from_npc"`
	FromName        string      `json:"from_name,omitempty"`
	Dialogue        DialogueObs `json:"dialogue"`
}

// SAY (server -> client): speech the character overheard or was told.
type SayMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	FromNpc         uint64 `json:"from_npc"`
	FromName        string `json:"from_name,omitempty"`
	Directed        bool   `json:"directed,omitempty"`
	Text            string `json:"text"`
}

// RESPONSE (client -> server): answer to a question.
type ResponseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ToNpc           uint64 `json:"to_npc"`
	DialogueID      uint64 `json:"dialogue_id"`
	Tag             uint32 `json:"tag"`
	ResponseID      uint16 `json:"response_id"`
}

// END (client -> server): leave a conversation.
type EndMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ToNpc           uint64 `json:"to_npc"`
	DialogueID      uint64 `json:"dialogue_id"`
}

// INTERACT (client -> server): start talking to an NPC.
type InteractMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Npc             uint64 `json:"npc"`
}

// MOVE (client -> server): the character's new position.
type MoveMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [3]float64 `json:"pos"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
