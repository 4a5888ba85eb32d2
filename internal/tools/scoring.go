package tools

import (
	"sort"
	"strings"

	"csmcp/internal/domain"
)

// Ranking weights for keyword matching against class and document names.
const (
	exactSymbolicNameScore    = 20.0
	exactDisplayNameScore     = 15.0
	symbolicSubstringScore    = 10.0
	displaySubstringScore     = 8.0
	descriptiveSubstringScore = 3.0

	highSimilarityThreshold            = 0.7
	mediumSimilarityThreshold          = 0.5
	descriptionHighSimilarityThreshold = 0.8

	highSimilarityMultiplier          = 5.0
	mediumSimilarityMultiplier        = 3.0
	displayHighSimilarityMultiplier   = 4.0
	displayMediumSimilarityMultiplier = 2.0
	descriptionSimilarityMultiplier   = 2.0

	keywordCoverageBonus = 5.0

	substringSimilarityMultiplier = 0.9
	prefixSimilarityMultiplier    = 0.7

	maxSearchResults = 20
	maxClassMatches  = 3
)

// tokenize splits text into lowercase words, breaking CamelCase and
// snake_case apart: "DocumentTitle" and "document_title" both become
// ["document", "title"].
func tokenize(text string) []string {
	var b strings.Builder
	for _, r := range text {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		if r == '_' {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	fields := strings.Fields(b.String())
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// wordSimilarity scores how alike two words are, from 0 to 1. Identical
// words score 1; substring containment and shared prefixes score
// proportionally to the overlap.
func wordSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if strings.Contains(b, a) {
		return substringSimilarityMultiplier * float64(len(a)) / float64(len(b))
	}
	if strings.Contains(a, b) {
		return substringSimilarityMultiplier * float64(len(b)) / float64(len(a))
	}

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	if prefix > 0 {
		longest := len(a)
		if len(b) > longest {
			longest = len(b)
		}
		return prefixSimilarityMultiplier * float64(prefix) / float64(longest)
	}
	return 0.0
}

// scoreName ranks a single name against the keywords. Exact matches score
// highest, then substrings, then fuzzy token similarity; multi-keyword
// queries earn a coverage bonus proportional to how many keywords matched.
func scoreName(name string, keywords []string) float64 {
	name = strings.ToLower(name)
	nameTokens := tokenize(name)

	score := 0.0
	for _, keyword := range keywords {
		keyword = strings.ToLower(keyword)

		if keyword == name {
			score += exactSymbolicNameScore
			continue
		}
		if strings.Contains(name, keyword) {
			score += symbolicSubstringScore
		}

		for _, kt := range tokenize(keyword) {
			for _, t := range nameTokens {
				sim := wordSimilarity(kt, t)
				if sim > highSimilarityThreshold {
					score += highSimilarityMultiplier * sim
				} else if sim > mediumSimilarityThreshold {
					score += mediumSimilarityMultiplier * sim
				}
			}
		}
	}

	score += coverageBonus(keywords, nameTokens)
	return score
}

// scoreClass ranks a class description against the keywords, weighting the
// symbolic name over the display name over the descriptive text.
func scoreClass(desc domain.ClassDescription, keywords []string) float64 {
	symbolic := strings.ToLower(desc.SymbolicName)
	display := strings.ToLower(desc.DisplayName)
	descriptive := strings.ToLower(desc.DescriptiveText)

	symbolicTokens := tokenize(symbolic)
	displayTokens := tokenize(display)
	descriptiveTokens := tokenize(descriptive)

	allTokens := make([]string, 0, len(symbolicTokens)+len(displayTokens)+len(descriptiveTokens))
	allTokens = append(allTokens, symbolicTokens...)
	allTokens = append(allTokens, displayTokens...)
	allTokens = append(allTokens, descriptiveTokens...)

	score := 0.0
	for _, keyword := range keywords {
		keyword = strings.ToLower(keyword)

		if keyword == symbolic {
			score += exactSymbolicNameScore
			continue
		}
		if keyword == display {
			score += exactDisplayNameScore
			continue
		}

		if strings.Contains(symbolic, keyword) {
			score += symbolicSubstringScore
		}
		if strings.Contains(display, keyword) {
			score += displaySubstringScore
		}

		for _, kt := range tokenize(keyword) {
			for _, t := range symbolicTokens {
				sim := wordSimilarity(kt, t)
				if sim > highSimilarityThreshold {
					score += highSimilarityMultiplier * sim
				} else if sim > mediumSimilarityThreshold {
					score += mediumSimilarityMultiplier * sim
				}
			}
			for _, t := range displayTokens {
				sim := wordSimilarity(kt, t)
				if sim > highSimilarityThreshold {
					score += displayHighSimilarityMultiplier * sim
				} else if sim > mediumSimilarityThreshold {
					score += displayMediumSimilarityMultiplier * sim
				}
			}
			// Descriptive text uses a higher threshold to cut false
			// positives from long prose.
			for _, t := range descriptiveTokens {
				if sim := wordSimilarity(kt, t); sim > descriptionHighSimilarityThreshold {
					score += descriptionSimilarityMultiplier * sim
				}
			}
		}

		if strings.Contains(descriptive, keyword) {
			score += descriptiveSubstringScore
		}
	}

	score += coverageBonus(keywords, allTokens)
	return score
}

func coverageBonus(keywords, tokens []string) float64 {
	if len(keywords) <= 1 {
		return 0
	}
	matched := 0
	for _, keyword := range keywords {
		keyword = strings.ToLower(keyword)
		for _, t := range tokens {
			if wordSimilarity(keyword, t) > highSimilarityThreshold {
				matched++
				break
			}
		}
	}
	return keywordCoverageBonus * float64(matched) / float64(len(keywords))
}

type scored[T any] struct {
	item  T
	score float64
}

// topMatches sorts by descending score and truncates to limit.
func topMatches[T any](matches []scored[T], limit int) []scored[T] {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
