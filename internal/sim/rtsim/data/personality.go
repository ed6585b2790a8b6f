package data

import "math/rand/v2"

// Personality is the five-trait model, each trait in 0..=255.
type Personality struct {
	Openness          uint8
	Conscientiousness uint8
	Extraversion      uint8
	Agreeableness     uint8
	Neuroticism       uint8
}

const (
	personalityMin = 0
	personalityMax = 255

	PersonalityMid           uint8 = (personalityMax - personalityMin) / 2
	PersonalityLowThreshold  uint8 = (personalityMax-personalityMin)/5*2 + personalityMin
	PersonalityHighThreshold uint8 = personalityMax - PersonalityLowThreshold
	PersonalityLittleHigh    uint8 = PersonalityMid + (personalityMax-personalityMin)/20
	PersonalityLittleLow     uint8 = PersonalityMid - (personalityMax-personalityMin)/20
)

type PersonalityTrait uint8

const (
	Open PersonalityTrait = iota
	Adventurous
	Closed
	Conscientious
	Busybody
	Unconscientious
	Extroverted
	Introverted
	Agreeable
	Sociable
	Disagreeable
	Neurotic
	Seeker
	Worried
	SadLoner
	Stable

	numPersonalityTraits
)

var traitCommentKeys = [numPersonalityTraits]string{
	Open:            "npc-speech-villager_open",
	Adventurous:     "npc-speech-villager_adventurous",
	Closed:          "npc-speech-villager_closed",
	Conscientious:   "npc-speech-villager_conscientious",
	Busybody:        "npc-speech-villager_busybody",
	Unconscientious: "npc-speech-villager_unconscientious",
	Extroverted:     "npc-speech-villager_extroverted",
	Introverted:     "npc-speech-villager_introverted",
	Agreeable:       "npc-speech-villager_agreeable",
	Sociable:        "npc-speech-villager_sociable",
	Disagreeable:    "npc-speech-villager_disagreeable",
	Neurotic:        "npc-speech-villager_neurotic",
	Seeker:          "npc-speech-villager_seeker",
	Worried:         "npc-speech-villager_worried",
	SadLoner:        "npc-speech-villager_sad_loner",
	Stable:          "npc-speech-villager_stable",
}

// distributed sums three uniform draws so values cluster around the middle of [lo, hi].
func distributed(lo, hi uint8, rng *rand.Rand) uint8 {
	l := int(hi - lo)
	v := int(lo) +
		rng.IntN(l/3+1) +
		rng.IntN(l/3+l%3%2+1) +
		rng.IntN(l/3+l%3/2+1)
	return uint8(v)
}

func DefaultPersonality() Personality {
	m := PersonalityMid
	return Personality{Openness: m, Conscientiousness: m, Extraversion: m, Agreeableness: m, Neuroticism: m}
}

func RandomPersonality(rng *rand.Rand) Personality {
	return Personality{
		Openness:          distributed(personalityMin, personalityMax, rng),
		Conscientiousness: distributed(personalityMin, personalityMax, rng),
		Extraversion:      distributed(personalityMin, personalityMax, rng),
		Agreeableness:     distributed(personalityMin, personalityMax, rng),
		Neuroticism:       distributed(personalityMin, personalityMax, rng),
	}
}

func RandomEvilPersonality(rng *rand.Rand) Personality {
	return Personality{
		Openness:          distributed(personalityMin, personalityMax, rng),
		Extraversion:      distributed(personalityMin, personalityMax, rng),
		Neuroticism:       distributed(personalityMin, personalityMax, rng),
		Agreeableness:     distributed(0, PersonalityLowThreshold-1, rng),
		Conscientiousness: distributed(0, PersonalityLowThreshold-1, rng),
	}
}

func RandomGoodPersonality(rng *rand.Rand) Personality {
	return Personality{
		Openness:          distributed(personalityMin, personalityMax, rng),
		Extraversion:      distributed(personalityMin, personalityMax, rng),
		Neuroticism:       distributed(personalityMin, personalityMax, rng),
		Agreeableness:     distributed(personalityMin, personalityMax, rng),
		Conscientiousness: distributed(PersonalityLowThreshold, personalityMax, rng),
	}
}

func (p Personality) Is(t PersonalityTrait) bool {
	switch t {
	case Open:
		return p.Openness > PersonalityHighThreshold
	case Adventurous:
		return p.Openness > PersonalityHighThreshold && p.Neuroticism < PersonalityMid
	case Closed:
		return p.Openness < PersonalityLowThreshold
	case Conscientious:
		return p.Conscientiousness > PersonalityHighThreshold
	case Busybody:
		return p.Agreeableness < PersonalityLowThreshold
	case Unconscientious:
		return p.Conscientiousness < PersonalityLowThreshold
	case Extroverted:
		return p.Extraversion > PersonalityHighThreshold
	case Introverted:
		return p.Extraversion < PersonalityLowThreshold
	case Agreeable:
		return p.Agreeableness > PersonalityHighThreshold
	case Sociable:
		return p.Agreeableness > PersonalityHighThreshold && p.Extraversion > PersonalityMid
	case Disagreeable:
		return p.Agreeableness < PersonalityLowThreshold
	case Neurotic:
		return p.Neuroticism > PersonalityHighThreshold
	case Seeker:
		return p.Neuroticism > PersonalityHighThreshold && p.Openness > PersonalityLittleHigh
	case Worried:
		return p.Neuroticism > PersonalityHighThreshold && p.Agreeableness > PersonalityLittleHigh
	case SadLoner:
		return p.Neuroticism > PersonalityHighThreshold && p.Extraversion < PersonalityLittleLow
	case Stable:
		return p.Neuroticism < PersonalityLowThreshold
	}
	return false
}

// ChatTrait picks one of the extreme traits this personality has, if any.
func (p Personality) ChatTrait(rng *rand.Rand) (PersonalityTrait, bool) {
	var have []PersonalityTrait
	for t := PersonalityTrait(0); t < numPersonalityTraits; t++ {
		if p.Is(t) {
			have = append(have, t)
		}
	}
	if len(have) == 0 {
		return 0, false
	}
	return have[rng.IntN(len(have))], true
}

func (p Personality) WillAmbush() bool {
	return p.Agreeableness < PersonalityLowThreshold && p.Conscientiousness < PersonalityLowThreshold
}

// GenericComment returns a localisation key flavoured by a random extreme trait.
func (p Personality) GenericComment(rng *rand.Rand) Content {
	if t, ok := p.ChatTrait(rng); ok {
		return Localized(traitCommentKeys[t])
	}
	return Localized("npc-speech-villager")
}
