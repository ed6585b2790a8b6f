package data

import "rtsim.ai/internal/sim/mathx"

type ContentKind uint8

const (
	ContentPlain ContentKind = iota + 1
	ContentLocalized
)

// Content is either literal text or a localisation key with optional
// arguments, rendered by the player-facing layer.
type Content struct {
	Kind ContentKind       `json:"kind"`
	Text string            `json:"text"`
	Args map[string]string `json:"args,omitempty"`
}

func Plain(text string) Content { return Content{Kind: ContentPlain, Text: text} }

func Localized(key string) Content { return Content{Kind: ContentLocalized, Text: key} }

func LocalizedWith(key string, args map[string]string) Content {
	return Content{Kind: ContentLocalized, Text: key, Args: args}
}

type DialogueKind uint8

const (
	DialogueStart DialogueKind = iota + 1
	DialogueEnd
	DialogueStatement
	DialogueQuestion
	DialogueResponse
	DialogueMarker
)

func (k DialogueKind) String() string {
	switch k {
	case DialogueStart:
		return "start"
	case DialogueEnd:
		return "end"
	case DialogueStatement:
		return "statement"
	case DialogueQuestion:
		return "question"
	case DialogueResponse:
		return "response"
	case DialogueMarker:
		return "marker"
	}
	return "unknown"
}

type ItemStack struct {
	Item   string
	Amount uint32
}

type Response struct {
	Msg       Content
	GivenItem *ItemStack
}

type ResponseOption struct {
	ID       uint16
	Response Response
}

// Dialogue is one turn of a conversation. Which fields are meaningful
// depends on Kind:
//
//	Statement: Msg
//	Question:  Tag, Msg, Responses
//	Response:  Tag, Response, ResponseID
//	Marker:    MarkerPos, Msg (the marker name)
type Dialogue struct {
	ID         DialogueID
	Kind       DialogueKind
	Msg        Content
	Tag        uint32
	Responses  []ResponseOption
	Response   Response
	ResponseID uint16
	MarkerPos  mathx.Vec2
}

// Message is the human-facing text of the turn, if it has any.
func (d Dialogue) Message() (Content, bool) {
	switch d.Kind {
	case DialogueStatement, DialogueQuestion:
		return d.Msg, true
	case DialogueResponse:
		return d.Response.Msg, true
	}
	return Content{}, false
}

// Option looks up a response option of a question by id.
func (d Dialogue) Option(id uint16) (Response, bool) {
	for _, o := range d.Responses {
		if o.ID == id {
			return o.Response, true
		}
	}
	return Response{}, false
}
