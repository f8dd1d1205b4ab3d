package logic

import (
	"math/rand/v2"
	"regexp"
	"strconv"
)

// maxDice caps a single roll expression so "99999d6" cannot stall a turn
const maxDice = 100

var diceRegex = regexp.MustCompile(`\b(\d+)d(\d+)\b`)

// Roller returns a uniform value in [1, sides]
type Roller func(sides int) int

// DefaultRoller rolls with the process-wide random source
func DefaultRoller(sides int) int {
	return rand.IntN(sides) + 1
}

// ReplaceDiceRolls substitutes every NdM token in content with a rolled total.
// Tokens with zero dice, zero sides or more than maxDice dice are left alone.
func ReplaceDiceRolls(content string, roll Roller) string {
	if roll == nil {
		roll = DefaultRoller
	}
	return diceRegex.ReplaceAllStringFunc(content, func(token string) string {
		match := diceRegex.FindStringSubmatch(token)
		count, err := strconv.Atoi(match[1])
		if err != nil || count <= 0 || count > maxDice {
			return token
		}
		sides, err := strconv.Atoi(match[2])
		if err != nil || sides <= 0 {
			return token
		}

		total := 0
		for range count {
			total += roll(sides)
		}
		return strconv.Itoa(total)
	})
}
