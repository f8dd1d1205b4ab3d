package logic

import (
	"fmt"
	"regexp"
	"strings"

	"tabletop-agent/internal/models"
)

// RulesDelimiter separates the mode token from the rules text in a mode response
const RulesDelimiter = "--rules--"

// ModeWindow is how many of the newest turns the classifier looks at
const ModeWindow = 10

const noProfilesText = "No character profiles are provided. Please ensure all character profiles are available before starting the campaign."

const gmRules = `1. Stay in character as DM.
2. When I tell you what I do, describe what happens briefly but colorfully.
3. Your description ends when it is unclear what my character should do next.
4. NEVER make choices for me, and NEVER finish until there is a choice for me to make.
5. NEVER describe options or ask questions, as it breaks immersion. That goes especially for open-ended questions, thought provoking questions, etc.
6. ALWAYS determine what 5e rules apply by looking up what is happening in the documents and retrieving relevant rules.
7. Once you have determined which rules apply, ALWAYS ask the players to roll.
8. When a user rolls you must ALWAYS include the DC or AC, and print exactly what happens for a natural 20, success, failure, and critical failure. Users will also roll dice for damage.
These 8 rules are sacrosanct. Follow them for EVERY reply.
If I suggest something prevented by the rules, such as casting a spell that I do not have on my character sheet, explain why I cannot and prompt me again.`

const combatRules = `Combat rules:
1. At the start of combat, roll initiative. Create an "encounter yaml" structure with the initiative order, and the enemies' stats, including AC, HP, attacks, to-hit bonus, and damage.
2. Update it each round.
3. Each round, ask me what I do. Then take EACH enemy's action rolling dice appropriately, in initiative order.
4. Before you are done with your reply, you must comprehensively update the encounter yaml and the player yaml if anything has changed such as HP totals etc.
Violent death, both monster and pc, is expected and ok.
When something happens to the character, update the character yaml.
We have held a Session 0 and determined that nothing is off limits.
Each time you reply, something interesting and novel should happen.`

var modeWordRegex = regexp.MustCompile(`\b(setup|exploration|combat)\b`)

// BuildModePrompt asks the retrieval engine for the current mode and the rules that apply.
// Only the newest ModeWindow turns are included.
func BuildModePrompt(turns []models.Turn, profiles []models.CharacterProfile) string {
	return fmt.Sprintf(`You are a GM running a D&D 5th edition campaign. Based on the following recent messages, determine the current operation mode:
%s
The modes are:
1. setup: Characters are not yet set up and the campaign has not started.
2. exploration: Activities that are not during a combat encounter.
3. combat: Ensuring all characters act before continuing with the campaign description.
Respond with only the mode name: setup, exploration, or combat.

Here are the character profiles:
%s
After the operation mode output %s followed by any rules that are appropriate for the situation from our rulebook.`,
		FormatTurnLines(LastTurns(turns, ModeWindow)), FormatProfiles(profiles), RulesDelimiter)
}

// BuildModeRetryPrompt re-asks after a response that broke the mode protocol
func BuildModeRetryPrompt(original, badResponse string) string {
	return fmt.Sprintf(`%s

Your previous answer could not be understood:
%s

Answer again. The first word must be exactly one of setup, exploration or combat, followed by %s and then the rules text.`,
		original, badResponse, RulesDelimiter)
}

// ParseModeResponse splits a "<mode> --rules-- <rules>" response. ok is false when
// the delimiter is missing or the mode half names no known mode.
func ParseModeResponse(response string) (mode models.Mode, rules string, ok bool) {
	head, tail, found := strings.Cut(response, RulesDelimiter)
	if !found {
		return "", "", false
	}

	mode, ok = NormalizeMode(head)
	if !ok {
		return "", "", false
	}
	return mode, strings.TrimSpace(tail), true
}

// NormalizeMode extracts the first known mode word from free text such as "**Combat**"
func NormalizeMode(text string) (models.Mode, bool) {
	match := modeWordRegex.FindString(strings.ToLower(text))
	if match == "" {
		return "", false
	}
	return models.Mode(match), true
}

// ModeSystemPrompt returns the narrative system prompt for mode
func ModeSystemPrompt(mode models.Mode, profiles []models.CharacterProfile) string {
	profileText := noProfilesText
	if len(profiles) > 0 {
		profileText = "Here are the character profiles:\n" + FormatProfiles(profiles)
	}

	switch mode {
	case models.ModeSetup:
		return fmt.Sprintf(`The campaign is in setup mode.
%s
Encourage the players to set up their characters and provide any necessary rules for setup.`, profileText)
	case models.ModeCombat:
		return fmt.Sprintf(`The campaign is in combat mode.
%s
Ensure all characters have a chance to act before continuing with the campaign description.
Output your continuation message asking for any dice rolls required by the D&D 5th edition rules.

%s

%s`, profileText, gmRules, combatRules)
	default:
		return fmt.Sprintf(`The campaign is in exploration mode.
%s
Continue the campaign with appropriate rules for exploration activities.

%s`, profileText, gmRules)
	}
}
