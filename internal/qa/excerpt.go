package qa

import (
	"slices"
	"strings"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/stem"
)

const (
	chunkWords = 150
	gapMarker  = "\n[...]\n"
)

type chunk struct {
	pos   int
	text  string
	score int
}

// Excerpt returns transcript unchanged when it fits in limit characters.
// Otherwise it keeps the fixed-size word windows sharing the most stems with
// question, in transcript order, up to limit. The opening window is always
// kept since it usually introduces the topic.
func Excerpt(transcript, question string, limit int) string {
	if limit <= 0 || len(transcript) <= limit {
		return transcript
	}

	words := strings.Fields(transcript)
	var chunks []chunk
	for i := 0; i < len(words); i += chunkWords {
		end := min(i+chunkWords, len(words))
		chunks = append(chunks, chunk{pos: len(chunks), text: strings.Join(words[i:end], " ")})
	}

	terms := stem.Set(question)
	for i := range chunks {
		for w := range stem.Set(chunks[i].text) {
			if _, ok := terms[w]; ok {
				chunks[i].score++
			}
		}
	}

	ranked := slices.Clone(chunks[1:])
	slices.SortStableFunc(ranked, func(a, b chunk) int { return b.score - a.score })

	picked := []chunk{chunks[0]}
	used := len(chunks[0].text)
	for _, c := range ranked {
		cost := len(c.text) + len(gapMarker)
		if used+cost > limit {
			continue
		}
		picked = append(picked, c)
		used += cost
	}
	slices.SortFunc(picked, func(a, b chunk) int { return a.pos - b.pos })

	var sb strings.Builder
	for i, c := range picked {
		if i > 0 {
			if c.pos == picked[i-1].pos+1 {
				sb.WriteByte(' ')
			} else {
				sb.WriteString(gapMarker)
			}
		}
		sb.WriteString(c.text)
	}
	return engine.TruncateRunes(sb.String(), limit, "")
}
