package sentiment

import "strings"

// Label is the mood tag stored alongside a conversation turn.
type Label string

const (
	Neutral Label = "neutral"
	Happy   Label = "happy"
	Sad     Label = "sad"
	Scared  Label = "scared"
	Angry   Label = "angry"
	Curious Label = "curious"
)

var keywordBuckets = map[Label][]string{
	Happy: {
		"happy", "yay", "awesome", "great", "fun", "love", "haha", "cool",
		"best", "favorite", "excited", "wonderful",
	},
	Sad: {
		"sad", "cry", "crying", "miss", "lonely", "upset", "hurt",
		"nobody", "unhappy",
	},
	Scared: {
		"scared", "scary", "afraid", "nightmare", "monster", "dark",
		"worried", "frightened",
	},
	Angry: {
		"angry", "mad", "hate", "unfair", "stupid", "annoying",
	},
	Curious: {
		"why", "how come", "what if", "wonder", "curious", "tell me about",
		"what is", "what are",
	},
}

var punctuationBoost = map[Label]int{
	Happy: 1,
}

// Analyze infers a mood label from what the child said and how the
// companion answered. The child's words dominate; the reply only breaks
// ties. Unrecognized input is neutral, never an error.
func Analyze(childText, companionText string) Label {
	label, score := scoreText(childText)
	if score == 0 {
		label, score = scoreText(companionText)
	}
	if score == 0 {
		return Neutral
	}
	return label
}

func scoreText(text string) (Label, int) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Neutral, 0
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	if exclamations := strings.Count(text, "!"); exclamations > 0 {
		for label, boost := range punctuationBoost {
			if scores[label] > 0 {
				scores[label] += boost * exclamations
			}
		}
	}
	if strings.Contains(text, "?") && scores[Curious] > 0 {
		scores[Curious] += 1
	}

	best, bestScore := Neutral, 0
	for label, score := range scores {
		if score > bestScore {
			best, bestScore = label, score
		}
	}
	return best, bestScore
}
