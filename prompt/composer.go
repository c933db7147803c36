// Package prompt composes the system prompt for one generation. Everything
// here is pure: no clock, no network, no configuration reads.
package prompt

import (
	"fmt"
	"strings"

	"streamchat/model"
)

// Input carries the chat settings and caller persona the composer works from.
type Input struct {
	Verbosity          int // 0-100, clamped
	UserName           string
	UserGender         string
	Mode               string
	CustomInstructions string
}

const basePersona = "You are a helpful assistant. Answer in the language the user writes in. " +
	"When tools are available, use them for facts you cannot know and cite what they return."

// Verbosity bands. The tier is a 0-100 slider mapped onto five bands, each
// with its own formatting rulebook.
const (
	BandMinimal       = "minimal"
	BandConcise       = "concise"
	BandStandard      = "standard"
	BandDetailed      = "detailed"
	BandComprehensive = "comprehensive"
)

var bandRules = map[string]string{
	BandMinimal: "Style rules: answer in at most two short sentences. No greetings, no recaps, " +
		"no bullet lists unless the user asks. Plain text only.",
	BandConcise: "Style rules: keep answers under one short paragraph. Prefer a brief direct answer " +
		"followed by at most three supporting points.",
	BandStandard: "Style rules: answer in a few short paragraphs. Use headings or lists only when they " +
		"genuinely aid scanning. Lead with the answer, then the reasoning.",
	BandDetailed: "Style rules: give a thorough answer with structure: a short summary first, then " +
		"sections with headings, examples where they help, and a closing note on caveats.",
	BandComprehensive: "Style rules: be exhaustive. Cover background, the main answer, alternatives, " +
		"edge cases and references. Use full markdown structure with headings, lists and tables.",
}

// Learning sub-modes replace the whole style section with a fixed
// pedagogical template. They never compose with verbosity rules or custom
// instructions.
var learningTemplates = map[string]string{
	model.ModeLearnExplain: "Teaching mode: explain the topic step by step, starting from what a beginner " +
		"knows. Introduce one concept at a time, check it with a short example, and only then build on it. " +
		"Finish with a three-line recap.",
	model.ModeLearnSocratic: "Teaching mode: do not hand over answers. Respond with one guiding question at " +
		"a time that leads the user toward the insight. When the user is stuck twice on the same point, give " +
		"a small hint, then return to questions.",
	model.ModeLearnQuiz: "Teaching mode: quiz the user. Ask one question at a time about the topic, wait for " +
		"the answer, then grade it, explain the correct answer briefly, and ask the next question, increasing " +
		"difficulty gradually.",
	model.ModeLearnFlashcards: "Teaching mode: turn the material into flashcards. Present the front of one " +
		"card, wait for the user's attempt, then show the back and move to the next card.",
}

// Band maps a 0-100 verbosity tier onto its band name.
func Band(verbosity int) string {
	switch {
	case verbosity <= 20:
		return BandMinimal
	case verbosity <= 40:
		return BandConcise
	case verbosity <= 60:
		return BandStandard
	case verbosity <= 80:
		return BandDetailed
	default:
		return BandComprehensive
	}
}

// Compose builds the full system prompt. In standard chat mode custom
// instructions, when present, are prepended to the style section and declared
// highest priority over the band rules. In a learning sub-mode the style
// section is the pedagogical template alone.
func Compose(in Input) string {
	var b strings.Builder
	b.WriteString(basePersona)

	if persona := personaLine(in.UserName, in.UserGender); persona != "" {
		b.WriteString("\n\n")
		b.WriteString(persona)
	}

	b.WriteString("\n\n")
	if tpl, ok := learningTemplates[in.Mode]; ok {
		b.WriteString(tpl)
		return b.String()
	}

	custom := strings.TrimSpace(in.CustomInstructions)
	if custom != "" {
		b.WriteString("User instructions (highest priority, override any style rules below):\n")
		b.WriteString(custom)
		b.WriteString("\n\n")
	}
	b.WriteString(bandRules[Band(in.Verbosity)])
	return b.String()
}

func personaLine(name, gender string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	line := fmt.Sprintf("The user's name is %s; address them by name when it feels natural.", name)
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "female":
		line += " Refer to the user with she/her pronouns."
	case "male":
		line += " Refer to the user with he/him pronouns."
	}
	return line
}
