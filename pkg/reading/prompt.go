package reading

import (
	"fmt"
	"strings"
)

// SystemPrompt is the standing instruction sent with every reading.
const SystemPrompt = "You are a wise, compassionate, and insightful tarot reader with deep knowledge of " +
	"tarot symbolism and meaning. You provide thoughtful, personalized readings that help people " +
	"gain clarity and guidance."

// Positions labels the three cards of a spread in order.
var Positions = [3]string{"Past", "Present", "Future"}

const generalIntro = `You are a wise and compassionate tarot reader. A person has requested a general reading to discover what the universe wants them to know.`

const questionIntro = `You are a wise and compassionate tarot reader. A person has asked: "%s"`

const generalGoals = `Please provide a thoughtful, personalized general reading that reveals insights about their current life path, interprets each card in its position, and offers guidance about what to focus on.`

const questionGoals = `Please provide a thoughtful, personalized reading that addresses their specific question, interprets each card in its position in the context of that question, and offers practical, empowering advice.`

const formatRules = `Format rules:
- Respond with exactly 4 paragraphs separated by a blank line.
- Paragraph 1 interprets the Past card, paragraph 2 the Present card, paragraph 3 the Future card.
- Paragraph 4 is a summary that ties the cards together and ends with an inspiring quote on its own line, formatted as "<quote>" - <Name>, where <Name> is a real, identifiable person.
- Begin immediately with the interpretation of the first card. No greeting, preamble, or headings.
- Keep a warm, supportive, and mystical tone, speaking directly to the person.`

// BuildPrompt renders the user prompt for a three-card spread. An empty or
// blank question selects the general reading template.
func BuildPrompt(question string, cards [3]DrawnCard) string {
	question = strings.TrimSpace(question)

	var b strings.Builder
	if question == "" {
		b.WriteString(generalIntro)
	} else {
		fmt.Fprintf(&b, questionIntro, question)
	}

	b.WriteString("\n\nThey have drawn the following three cards:\n\n")
	for i, card := range cards {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s (%s)\nMeaning: %s\nKeywords: %s",
			Positions[i], card.Name, card.Orientation(), card.Meaning(), strings.Join(card.Keywords(), ", "))
	}

	b.WriteString("\n\n")
	if question == "" {
		b.WriteString(generalGoals)
	} else {
		b.WriteString(questionGoals)
	}
	b.WriteString("\n\n")
	b.WriteString(formatRules)
	return b.String()
}
