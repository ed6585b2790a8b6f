package data

type InputKind uint8

const (
	InputReport InputKind = iota + 1
	InputInteraction
	InputDialogue
)

// Input is one external stimulus queued for an NPC.
type Input struct {
	Kind       InputKind
	Report     ReportID
	From       Actor
	Dialogue   Dialogue
	ReceivedAt float64
}

func ReportInput(id ReportID) Input { return Input{Kind: InputReport, Report: id} }

func InteractionInput(by Actor) Input { return Input{Kind: InputInteraction, From: by} }

func DialogueInput(from Actor, d Dialogue, at float64) Input {
	return Input{Kind: InputDialogue, From: from, Dialogue: d, ReceivedAt: at}
}

// Inbox is the FIFO of inputs for an NPC.
type Inbox struct {
	items []Input
}

func (in *Inbox) Push(i Input) { in.items = append(in.items, i) }

func (in *Inbox) Len() int { return len(in.items) }

func (in *Inbox) Items() []Input { return in.items }

// Retain keeps the inputs for which keep returns true, preserving order.
func (in *Inbox) Retain(keep func(Input) bool) {
	out := in.items[:0]
	for _, i := range in.items {
		if keep(i) {
			out = append(out, i)
		}
	}
	for j := len(out); j < len(in.items); j++ {
		in.items[j] = Input{}
	}
	in.items = out
}

// Take removes and returns the first input matching pred.
func (in *Inbox) Take(pred func(Input) bool) (Input, bool) {
	for j, i := range in.items {
		if pred(i) {
			in.items = append(in.items[:j], in.items[j+1:]...)
			return i, true
		}
	}
	return Input{}, false
}
