package logic

import (
	"fmt"
	"regexp"

	"tabletop-agent/internal/models"
)

// Specialist identifies the persona that elaborates an assistant answer
type Specialist string

const (
	SpecialistCode            Specialist = "code_specialist"
	SpecialistTravel          Specialist = "travel_specialist"
	SpecialistFinance         Specialist = "finance_specialist"
	SpecialistHealth          Specialist = "health_specialist"
	SpecialistEducation       Specialist = "education_specialist"
	SpecialistImageGeneration Specialist = "image_generation_specialist"
	SpecialistNoResponse      Specialist = "no_response"
	SpecialistGeneralist      Specialist = "generalist"
)

const userIDFormatInstruction = "When responding to users format the response as <@userId> example <@376578314694819850>"

var specialistRegex = regexp.MustCompile(`specialist_id:\s*(\w+)`)

// RouteKind is the outcome of classifying an assistant query
type RouteKind int

const (
	// RouteDirect means the classifier answered itself; Text is the final answer
	RouteDirect RouteKind = iota
	// RouteSuppress means nothing is sent and nothing is stored
	RouteSuppress
	// RouteElaborate means a specialist persona writes the final answer
	RouteElaborate
)

// Route is the parsed classification of a single query
type Route struct {
	Kind       RouteKind
	Specialist Specialist
	Text       string
}

// ParseSpecialist takes the first specialist_id match out of a classifier response.
// Unknown ids resolve to SpecialistGeneralist.
func ParseSpecialist(response string) (Specialist, bool) {
	match := specialistRegex.FindStringSubmatch(response)
	if match == nil {
		return "", false
	}

	switch id := Specialist(match[1]); id {
	case SpecialistCode, SpecialistTravel, SpecialistFinance, SpecialistHealth,
		SpecialistEducation, SpecialistImageGeneration, SpecialistNoResponse:
		return id, true
	default:
		return SpecialistGeneralist, true
	}
}

// RouteResponse turns a classifier response into a routing decision.
// Without a match the response itself is the answer, unchanged.
func RouteResponse(response string) Route {
	specialist, ok := ParseSpecialist(response)
	switch {
	case !ok:
		return Route{Kind: RouteDirect, Text: response}
	case specialist == SpecialistNoResponse:
		return Route{Kind: RouteSuppress, Specialist: specialist}
	default:
		return Route{Kind: RouteElaborate, Specialist: specialist}
	}
}

// BuildClassifyPrompt asks the engine to answer directly or name a specialist
func BuildClassifyPrompt(history []models.Turn, userID, query string) string {
	return fmt.Sprintf(`You are a helpful assistant. Respond in short order.
If the query requires a specialist, respond with only the text 'specialist_id: <specialist_id>'.
Replace <specialist_id> with an id from this list of specialists:
- code_specialist: For coding related queries.
- travel_specialist: For travel related queries.
- finance_specialist: For finance related queries.
- health_specialist: For health related queries.
- education_specialist: For education related queries.
- image_generation_specialist: For requests to draw, render or generate a picture.
If the message does not need any reply, respond with only the text 'specialist_id: no_response'.

Here is the recent conversation history:
%s
<@%s>: %s

%s`, FormatMentionLines(history), userID, query, userIDFormatInstruction)
}

type persona struct {
	intro  string
	expert string
	good   string
	bad    string
	role   string
}

var personas = map[Specialist]persona{
	SpecialistCode: {
		intro:  "You are a highly skilled code specialist with expertise in multiple programming languages, software architecture, and DevOps practices.",
		expert: "An expert in this field should have deep knowledge of algorithms, data structures, design patterns, and modern development frameworks.",
		good:   "Architecting scalable, maintainable solutions; refactoring legacy code for improved performance; implementing robust CI/CD pipelines.",
		bad:    "Writing vulnerable code with security flaws; ignoring principles of clean code and documentation; failing to consider cross-platform compatibility.",
		role:   "a code specialist",
	},
	SpecialistTravel: {
		intro:  "You are a highly skilled travel specialist with extensive knowledge of global destinations, cultures, and travel logistics.",
		expert: "An expert in this field should understand visa requirements, seasonal travel patterns, and how to craft unique experiences for diverse traveler types.",
		good:   "Curating off-the-beaten-path adventures; navigating complex multi-country itineraries; providing insider tips for immersive cultural experiences.",
		bad:    "Recommending cookie-cutter tour packages; overlooking potential travel restrictions or health advisories; disregarding travelers' personal interests and limitations.",
		role:   "a travel specialist",
	},
	SpecialistFinance: {
		intro:  "You are a highly skilled finance specialist with deep understanding of global markets, investment strategies, and economic trends.",
		expert: "An expert in this field should be able to analyze complex financial data, understand regulatory environments, and provide sound advice for various financial goals.",
		good:   "Developing comprehensive wealth management strategies; explaining complex financial instruments in layman's terms; identifying emerging market opportunities.",
		bad:    "Offering one-size-fits-all investment advice; ignoring an individual's risk tolerance or time horizon; failing to disclose potential conflicts of interest.",
		role:   "a finance specialist",
	},
	SpecialistHealth: {
		intro:  "You are a highly skilled health specialist with expertise in preventive care, nutrition, fitness, and holistic wellness approaches.",
		expert: "An expert in this field should have a strong foundation in human biology, current medical research, and evidence-based health practices.",
		good:   "Creating personalized wellness plans integrating diet, exercise, and stress management; explaining complex medical concepts clearly; staying updated on the latest health research.",
		bad:    "Promoting pseudoscientific health claims; neglecting the importance of mental health in overall wellness; failing to recognize when to refer to medical professionals.",
		role:   "a health specialist",
	},
	SpecialistEducation: {
		intro:  "You are a highly skilled education specialist with knowledge of diverse learning theories, educational technologies, and curriculum development.",
		expert: "An expert in this field should understand cognitive development, inclusive education practices, and be able to adapt teaching methods for various learning needs.",
		good:   "Designing engaging, multi-modal learning experiences; implementing effective assessment strategies; fostering critical thinking and creativity in learners.",
		bad:    "Relying solely on standardized testing for evaluation; ignoring the importance of social-emotional learning; failing to adapt to diverse cultural and socioeconomic backgrounds.",
		role:   "an education specialist",
	},
}

// SpecialistPrompt builds the elaboration prompt for the given persona
func SpecialistPrompt(specialist Specialist, userID, query string) string {
	if specialist == SpecialistImageGeneration {
		return ImageRequestPrompt(query)
	}

	p, ok := personas[specialist]
	if !ok {
		return fmt.Sprintf(`You are a highly skilled assistant with broad knowledge across multiple disciplines.
An expert assistant should be able to provide accurate, helpful information while recognizing the limits of their expertise.
Query: %s
<@%s>: Respond to the query.

%s`, query, userID, userIDFormatInstruction)
	}

	return fmt.Sprintf(`%s
%s
Good experience: %s
Bad experience: %s
Query: %s
<@%s>: Respond to the query as %s.

%s`, p.intro, p.expert, p.good, p.bad, query, userID, p.role, userIDFormatInstruction)
}
