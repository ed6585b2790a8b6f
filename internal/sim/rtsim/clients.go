package rtsim

import (
	"encoding/json"

	"rtsim.ai/internal/protocol"
	"rtsim.ai/internal/sim/rtsim/data"
)

func (s *Sim) handleJoin(req JoinRequest) JoinResponse {
	if req.Character == 0 {
		return JoinResponse{ErrCode: protocol.ErrBadRequest, ErrMsg: "character_id required"}
	}
	if c, ok := s.clients[req.Character]; ok && c.session != req.SessionID {
		return JoinResponse{ErrCode: protocol.ErrAlreadyTaken, ErrMsg: "character already connected"}
	}
	s.clients[req.Character] = &client{
		id:        req.Character,
		session:   req.SessionID,
		name:      req.Name,
		out:       req.Out,
		questions: map[data.DialogueID]data.Dialogue{},
	}
	s.data.SetCharacter(data.Character{ID: req.Character, WPos: req.Pos})

	digest := ""
	if s.cfg.Speech != nil {
		digest = s.cfg.Speech.Digest
	}
	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       req.SessionID,
		WorldID:         s.cfg.ID,
		CharacterID:     uint64(req.Character),
		TickRateHz:      s.cfg.Tuning.TickRateHz,
		SpeechDigest:    digest,
	}}
}

// handleLeave drops the session's character. A stale session that was
// already replaced is ignored.
func (s *Sim) handleLeave(session string) (data.CharacterID, bool) {
	for id, c := range s.clients {
		if c.session != session {
			continue
		}
		delete(s.clients, id)
		s.data.RemoveCharacter(id)
		return id, true
	}
	return 0, false
}

func (s *Sim) sessionClient(env ClientEnvelope) *client {
	c := s.clients[env.Character]
	if c == nil || c.session != env.SessionID {
		return nil
	}
	return c
}

func (s *Sim) handleClientMsg(env ClientEnvelope) {
	c := s.sessionClient(env)
	if c == nil {
		return
	}
	self := data.CharacterActor(c.id)

	if env.Type == protocol.TypeMove {
		s.data.SetCharacter(data.Character{ID: c.id, WPos: env.Pos})
		return
	}

	n, ok := s.data.Npc(env.Npc)
	if !ok || n.IsDead() {
		s.sendError(c, protocol.ErrInvalidTarget, "no such npc")
		return
	}
	switch env.Type {
	case protocol.TypeInteract:
		ch := s.data.Characters[c.id]
		if ch.WPos.DistSq(n.WPos) > s.cfg.InteractRange*s.cfg.InteractRange {
			s.sendError(c, protocol.ErrInvalidTarget, "npc is too far away")
			return
		}
		n.Inbox.Push(data.InteractionInput(self))
	case protocol.TypeResponse:
		q, ok := c.questions[env.Dialogue]
		if !ok || q.Tag != env.Tag {
			s.sendError(c, protocol.ErrStale, "no open question")
			return
		}
		resp, ok := q.Option(env.Response)
		if !ok {
			s.sendError(c, protocol.ErrBadRequest, "unknown response id")
			return
		}
		delete(c.questions, env.Dialogue)
		n.Inbox.Push(data.DialogueInput(self, data.Dialogue{
			ID:         env.Dialogue,
			Kind:       data.DialogueResponse,
			Tag:        env.Tag,
			Response:   resp,
			ResponseID: env.Response,
		}, s.data.Time))
	case protocol.TypeEnd:
		delete(c.questions, env.Dialogue)
		n.Inbox.Push(data.DialogueInput(self, data.Dialogue{ID: env.Dialogue, Kind: data.DialogueEnd}, s.data.Time))
	default:
		s.sendError(c, protocol.ErrBadRequest, "unsupported message type")
	}
}

func (s *Sim) sendError(c *client, code, msg string) {
	b, err := json.Marshal(protocol.NewError(code, msg))
	if err != nil {
		return
	}
	sendLatest(c.out, b)
}

func (s *Sim) render(c data.Content) string {
	if s.cfg.Speech == nil {
		return c.Text
	}
	return s.cfg.Speech.Render(c)
}

func contentKey(c data.Content) string {
	if c.Kind == data.ContentLocalized {
		return c.Text
	}
	return ""
}

// routeSay sends speech to its target, or to every character in earshot
// when it is undirected.
func (s *Sim) routeSay(tick uint64, from data.NpcID, act data.NpcAction) SpeechRecord {
	text := s.render(act.Content)
	rec := SpeechRecord{Npc: uint64(from), Key: contentKey(act.Content), Text: text}
	if !act.Target.IsZero() {
		rec.Target = act.Target.String()
	}
	n, ok := s.data.Npc(from)
	if !ok {
		return rec
	}
	msg := protocol.SayMsg{
		Type:            protocol.TypeSay,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		FromNpc:         uint64(from),
		FromName:        n.Name(),
		Text:            text,
	}
	if cid, ok := act.Target.CharacterID(); ok {
		if c := s.clients[cid]; c != nil {
			msg.Directed = true
			s.send(c, msg)
		}
		return rec
	}
	rSq := s.cfg.HearingRadius * s.cfg.HearingRadius
	for id, ch := range s.data.Characters {
		c := s.clients[id]
		if c == nil || ch.WPos.DistSq(n.WPos) >= rSq {
			continue
		}
		s.send(c, msg)
	}
	return rec
}

// routeDialogue forwards a dialogue turn to the character it is aimed at.
// Questions are remembered so the answer can be checked.
func (s *Sim) routeDialogue(tick uint64, from data.NpcID, act data.NpcAction) DialogueRecord {
	dl := act.Dialogue
	rec := DialogueRecord{Npc: uint64(from), Target: act.Target.String(), ID: uint64(dl.ID), Kind: dl.Kind.String()}
	obs := protocol.DialogueObs{ID: uint64(dl.ID), Kind: dl.Kind.String()}
	if msg, ok := dl.Message(); ok {
		obs.Text = s.render(msg)
	}
	switch dl.Kind {
	case data.DialogueQuestion:
		obs.Tag = dl.Tag
		for _, o := range dl.Responses {
			obs.Responses = append(obs.Responses, protocol.ResponseOptionObs{ID: o.ID, Text: s.render(o.Response.Msg)})
		}
	case data.DialogueResponse:
		obs.Tag = dl.Tag
		rid := dl.ResponseID
		obs.ResponseID = &rid
	case data.DialogueMarker:
		obs.Text = s.render(dl.Msg)
		obs.Marker = &[2]float64{dl.MarkerPos.X, dl.MarkerPos.Y}
	}
	rec.Text = obs.Text

	cid, ok := act.Target.CharacterID()
	if !ok {
		return rec
	}
	c := s.clients[cid]
	if c == nil {
		return rec
	}
	switch dl.Kind {
	case data.DialogueQuestion:
		c.questions[dl.ID] = dl
	case data.DialogueEnd:
		delete(c.questions, dl.ID)
	}
	name := ""
	if n, ok := s.data.Npc(from); ok {
		name = n.Name()
	}
	s.send(c, protocol.DialogueMsg{
		Type:            protocol.TypeDialogue,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		FromNpc:         uint64(from),
		FromName:        name,
		Dialogue:        obs,
	})
	return rec
}

func (s *Sim) send(c *client, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("marshal %T: %v", msg, err)
		return
	}
	sendLatest(c.out, b)
}
