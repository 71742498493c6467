package domain

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
)

// DiceCount is the number of dice thrown in one turn.
const DiceCount = 6

// Die is the face value of a single die, 1..6.
type Die int

// Valid reports whether d is a face of a six-sided die.
func (d Die) Valid() bool { return d >= 1 && d <= 6 }

// Roll holds the six dice thrown in one turn.
type Roll []Die

// Errors returned by domain operations.
var (
	ErrInvalidRoll = errors.New("invalid roll")
)

// Validate checks the roll has exactly six dice with faces in range.
func (r Roll) Validate() error {
	if len(r) != DiceCount {
		return fmt.Errorf("%w: want %d dice, got %d", ErrInvalidRoll, DiceCount, len(r))
	}
	for i, d := range r {
		if !d.Valid() {
			return fmt.Errorf("%w: die %d has face %d", ErrInvalidRoll, i, d)
		}
	}
	return nil
}

// Sorted returns an ascending copy of the roll.
func (r Roll) Sorted() Roll {
	out := make(Roll, len(r))
	copy(out, r)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders dice separated by spaces, e.g. "1 1 5 6".
func (r Roll) String() string {
	parts := make([]string, len(r))
	for i, d := range r {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, " ")
}

// Source supplies randomness for dice rolls.
// Implementations must be safe for concurrent use.
type Source interface {
	// Intn returns a random int in [0, n).
	Intn(n int) int
}

// RollDice throws six dice using src.
func RollDice(src Source) Roll {
	r := make(Roll, DiceCount)
	for i := range r {
		r[i] = Die(src.Intn(6) + 1)
	}
	return r
}

// Group is a maximal run of dice sharing one face value.
type Group struct {
	Face Die
	Dice Roll
}

// Count is the number of dice in the group.
func (g Group) Count() int { return len(g.Dice) }

// ScoredGroup pairs a group with the points it contributes.
type ScoredGroup struct {
	Group
	Points int
}

// String renders the group as "<dice> => <points>".
func (s ScoredGroup) String() string {
	return fmt.Sprintf("%s => %d", s.Dice, s.Points)
}

// GroupRoll partitions a roll into groups ordered by ascending face value.
func GroupRoll(r Roll) ([]Group, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	sorted := r.Sorted()
	var groups []Group
	for _, d := range sorted {
		if n := len(groups); n > 0 && groups[n-1].Face == d {
			groups[n-1].Dice = append(groups[n-1].Dice, d)
			continue
		}
		groups = append(groups, Group{Face: d, Dice: Roll{d}})
	}
	return groups, nil
}

// CalculateScoreGroup returns the points for one group. It depends only on the
// face value and the number of dice showing it. Groups are expected to come
// from GroupRoll; a face outside 1..6 scores 0 and dice that do not show the
// group's face are not counted.
func CalculateScoreGroup(g Group) int {
	if !g.Face.Valid() {
		return 0
	}
	n := 0
	for _, d := range g.Dice {
		if d == g.Face {
			n++
		}
	}
	if n >= 3 {
		extra := n - 3
		if g.Face == 1 {
			return 1000 + 100*extra
		}
		v := int(g.Face)
		return v*100 + v*10*extra
	}
	switch g.Face {
	case 1:
		return 100 * n
	case 5:
		return 50 * n
	default:
		return 0
	}
}

// CalculateScore sums the group scores. Zero means the roll is a bust.
func CalculateScore(groups []Group) int {
	total := 0
	for _, g := range groups {
		total += CalculateScoreGroup(g)
	}
	return total
}

// Result is a fully scored roll.
type Result struct {
	Roll   Roll
	Groups []ScoredGroup
	Total  int
}

// Bust reports whether nothing in the roll scored.
func (r Result) Bust() bool { return r.Total == 0 }

// Score groups and scores a roll. The returned roll is sorted for display.
func Score(r Roll) (Result, error) {
	groups, err := GroupRoll(r)
	if err != nil {
		return Result{}, err
	}
	res := Result{Roll: r.Sorted(), Groups: make([]ScoredGroup, len(groups))}
	for i, g := range groups {
		res.Groups[i] = ScoredGroup{Group: g, Points: CalculateScoreGroup(g)}
	}
	res.Total = CalculateScore(groups)
	return res, nil
}

type globalSource struct{}

func (globalSource) Intn(n int) int { return rand.IntN(n) }

// DefaultSource draws from the runtime's shared generator.
var DefaultSource Source = globalSource{}
