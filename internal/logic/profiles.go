package logic

import (
	"fmt"
	"regexp"
	"strings"

	"tabletop-agent/internal/models"
)

var (
	blankLineRegex     = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)
	profileHeaderRegex = regexp.MustCompile(`^-- (.*) --`)
)

// ProfileBlock is one named character sheet cut out of model output
type ProfileBlock struct {
	Name string
	Data string
}

// ParseProfileBlocks splits text on blank lines and keeps the blocks headed by
// "-- NAME --". Headerless or nameless blocks are dropped.
func ParseProfileBlocks(text string) []ProfileBlock {
	var blocks []ProfileBlock
	for _, raw := range blankLineRegex.Split(text, -1) {
		block := strings.TrimSpace(raw)
		if block == "" {
			continue
		}

		match := profileHeaderRegex.FindStringSubmatch(block)
		if match == nil {
			continue
		}
		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}

		blocks = append(blocks, ProfileBlock{Name: name, Data: block})
	}
	return blocks
}

// MatchProfileUpdates pairs parsed blocks with existing profiles of exactly the
// same name, reusing the existing owner. Blocks naming no existing profile are skipped.
func MatchProfileUpdates(blocks []ProfileBlock, existing []models.CharacterProfile) []models.CharacterProfile {
	owners := make(map[string]models.CharacterProfile, len(existing))
	for _, p := range existing {
		if _, seen := owners[p.Name]; !seen {
			owners[p.Name] = p
		}
	}

	var updates []models.CharacterProfile
	for _, block := range blocks {
		current, ok := owners[block.Name]
		if !ok {
			continue
		}
		updates = append(updates, models.CharacterProfile{
			RoomID:  current.RoomID,
			OwnerID: current.OwnerID,
			Name:    block.Name,
			Data:    block.Data,
		})
	}
	return updates
}

// BuildCharacterUpdatePrompt asks for refreshed character sheets after a narrative reply
func BuildCharacterUpdatePrompt(profiles []models.CharacterProfile, narrative string) string {
	return fmt.Sprintf(`You are a D&D 5e character generator. Here are the current character profiles:
%s
Please update the character profiles based on the latest events: %s and ensure they are formatted exactly like the 5e Monster Manual.
Separate characters with a blank line and do not put blank lines inside a character.
Use the following format for each character:
-- CHARACTER NAME --
Character Name
Size Type, Alignment
Armor Class
Hit Points
Speed
STR DEX CON INT WIS CHA
Skills
Senses
Languages
Challenge
Traits
Actions
Biography
PlayerID`, FormatProfiles(profiles), strings.TrimSpace(narrative))
}
