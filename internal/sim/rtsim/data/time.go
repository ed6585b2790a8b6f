package data

import "math"

// DayCycleFactor is how many time-of-day seconds pass per simulated second.
const DayCycleFactor = 24

type DayPeriod uint8

const (
	Night DayPeriod = iota
	Morning
	Noon
	Evening
)

func DayPeriodAt(tod float64) DayPeriod {
	h := math.Mod(tod, DayLength) / 3600
	if h < 0 {
		h += 24
	}
	switch {
	case h < 6:
		return Night
	case h < 11:
		return Morning
	case h < 16:
		return Noon
	case h < 19:
		return Evening
	default:
		return Night
	}
}

func (p DayPeriod) IsDark() bool  { return p == Night }
func (p DayPeriod) IsLight() bool { return p != Night }

func (p DayPeriod) String() string {
	switch p {
	case Morning:
		return "morning"
	case Noon:
		return "noon"
	case Evening:
		return "evening"
	}
	return "night"
}

// Day is the whole number of days elapsed at tod.
func Day(tod float64) int64 { return int64(math.Floor(tod / DayLength)) }

// AddDays returns the simulated time that lies the given number of
// in-world days after t.
func AddDays(t, days float64) float64 { return t + days*DayLength/DayCycleFactor }
