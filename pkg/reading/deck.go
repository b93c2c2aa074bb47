package reading

// SampleDeck returns a handful of Major Arcana cards for the terminal client
// and tests. It is not a complete deck.
func SampleDeck() []Card {
	return []Card{
		{
			Name:             "The Fool",
			UprightMeaning:   "New beginnings, spontaneity and a leap of faith into the unknown.",
			UprightKeywords:  []string{"beginnings", "innocence", "spontaneity", "free spirit"},
			ReversedMeaning:  "Recklessness, hesitation or holding back from a fresh start.",
			ReversedKeywords: []string{"recklessness", "fear", "holding back"},
		},
		{
			Name:             "The Magician",
			UprightMeaning:   "Manifestation, resourcefulness and the power to act on your will.",
			UprightKeywords:  []string{"manifestation", "skill", "willpower"},
			ReversedMeaning:  "Manipulation, untapped talent or scattered intentions.",
			ReversedKeywords: []string{"manipulation", "poor planning", "untapped talent"},
		},
		{
			Name:             "The High Priestess",
			UprightMeaning:   "Intuition, hidden knowledge and listening to the inner voice.",
			UprightKeywords:  []string{"intuition", "mystery", "subconscious"},
			ReversedMeaning:  "Secrets, disconnection from intuition or withdrawal.",
			ReversedKeywords: []string{"secrets", "withdrawal", "silence"},
		},
		{
			Name:             "The Lovers",
			UprightMeaning:   "Union, harmony and choices made from the heart.",
			UprightKeywords:  []string{"love", "harmony", "choices"},
			ReversedMeaning:  "Imbalance, misaligned values or a difficult choice avoided.",
			ReversedKeywords: []string{"imbalance", "disharmony", "misalignment"},
		},
		{
			Name:             "The Tower",
			UprightMeaning:   "Sudden upheaval that clears away what was built on false ground.",
			UprightKeywords:  []string{"upheaval", "revelation", "sudden change"},
			ReversedMeaning:  "Averted disaster, resisting change or a slow unravelling.",
			ReversedKeywords: []string{"resistance", "fear of change", "delay"},
		},
		{
			Name:             "The Star",
			UprightMeaning:   "Hope, renewal and quiet faith in the future.",
			UprightKeywords:  []string{"hope", "renewal", "serenity"},
			ReversedMeaning:  "Discouragement, lost faith or disconnection from purpose.",
			ReversedKeywords: []string{"despair", "discouragement", "doubt"},
		},
		{
			Name:             "The Sun",
			UprightMeaning:   "Joy, success and warmth shining on everything you do.",
			UprightKeywords:  []string{"joy", "success", "vitality"},
			ReversedMeaning:  "Temporary gloom, overconfidence or success delayed.",
			ReversedKeywords: []string{"gloom", "overconfidence", "delay"},
		},
	}
}
