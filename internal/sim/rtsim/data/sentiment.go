package data

import (
	"math"
	"sort"
)

// Sentiment thresholds. A sentiment "is" a threshold when it lies at or
// beyond it, away from zero.
const (
	SentimentAlly     float32 = 0.3
	SentimentPositive float32 = 0.1
	SentimentNegative float32 = -0.1
	SentimentRival    float32 = -0.2
	SentimentEnemy    float32 = -0.6
	SentimentVillain  float32 = -0.8
)

// NpcMaxSentiments bounds the table kept per NPC during cleanup.
const NpcMaxSentiments = 128

// decayPerSec is how far an opinion relaxes toward zero per simulated second.
const decayPerSec = 1.0 / (60 * 60 * 2)

// Sentiment is an opinion in [-1, 1].
type Sentiment float32

func (s Sentiment) Value() float32 { return float32(s) }

// Is reports whether the opinion is at least as strong as the threshold.
func (s Sentiment) Is(threshold float32) bool {
	if threshold >= 0 {
		return float32(s) >= threshold
	}
	return float32(s) <= threshold
}

// Sentiments is an NPC's table of opinions toward other actors.
type Sentiments struct {
	Toward map[Actor]Sentiment
}

func NewSentiments() Sentiments {
	return Sentiments{Toward: map[Actor]Sentiment{}}
}

func (s *Sentiments) Of(a Actor) Sentiment {
	return s.Toward[a]
}

func (s *Sentiments) Len() int { return len(s.Toward) }

// ChangeBy nudges the opinion toward a by delta without pushing it past cap
// in the direction of change. Opinions already beyond cap are left alone.
func (s *Sentiments) ChangeBy(a Actor, delta, cap float32) {
	if s.Toward == nil {
		s.Toward = map[Actor]Sentiment{}
	}
	v := float32(s.Toward[a])
	switch {
	case delta > 0 && v < cap:
		v = min(v+delta, cap)
	case delta < 0 && v > cap:
		v = max(v+delta, cap)
	}
	s.set(a, v)
}

// LimitBelow raises the opinion toward a so that it is no longer at or
// below the threshold.
func (s *Sentiments) LimitBelow(a Actor, threshold float32) {
	v, ok := s.Toward[a]
	if !ok {
		return
	}
	if float32(v) <= threshold {
		s.set(a, nextAbove(threshold))
	}
}

func nextAbove(v float32) float32 {
	return math.Nextafter32(v, 1)
}

func (s *Sentiments) set(a Actor, v float32) {
	v = max(-1, min(1, v))
	if v == 0 {
		delete(s.Toward, a)
		return
	}
	s.Toward[a] = Sentiment(v)
}

// Decay relaxes every opinion toward neutral by a fixed rate. Elapsed time
// dt is in simulated seconds.
func (s *Sentiments) Decay(dt float64) {
	step := float32(decayPerSec * dt)
	if step <= 0 {
		return
	}
	for a, v := range s.Toward {
		switch {
		case v > 0:
			s.set(a, max(0, float32(v)-step))
		case v < 0:
			s.set(a, min(0, float32(v)+step))
		}
	}
}

// Cleanup keeps the max strongest opinions.
func (s *Sentiments) Cleanup(maxKept int) {
	if len(s.Toward) <= maxKept {
		return
	}
	type entry struct {
		a Actor
		v Sentiment
	}
	all := make([]entry, 0, len(s.Toward))
	for a, v := range s.Toward {
		all = append(all, entry{a, v})
	}
	sort.Slice(all, func(i, j int) bool {
		ai, aj := abs32(float32(all[i].v)), abs32(float32(all[j].v))
		if ai != aj {
			return ai > aj
		}
		return all[i].a.String() < all[j].a.String()
	})
	for _, e := range all[maxKept:] {
		delete(s.Toward, e.a)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
