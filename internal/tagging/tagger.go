package tagging

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}'\-]+`)

// Tagger picks topic labels for article text. It never mutates its taxonomy.
type Tagger struct {
	topics    []Topic
	hints     []SourceHint
	stopwords map[string]struct{}
}

// New builds a tagger; a nil taxonomy means DefaultTaxonomy.
func New(t *Taxonomy) *Tagger {
	if t == nil {
		t = DefaultTaxonomy()
	}

	tg := &Tagger{
		stopwords: make(map[string]struct{}, len(t.Stopwords)),
	}
	for _, topic := range t.Topics {
		kws := make([]string, 0, len(topic.Keywords))
		for _, k := range topic.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		tg.topics = append(tg.topics, Topic{Label: topic.Label, Keywords: kws})
	}
	tg.hints = append(tg.hints, t.SourceHints...)
	for _, w := range t.Stopwords {
		tg.stopwords[strings.ToLower(w)] = struct{}{}
	}
	return tg
}

// Tag returns at most maxTags labels: the best scoring topic, else a source hint,
// else the most salient words. maxTags < 1 is treated as 1.
func (tg *Tagger) Tag(text, title, sourceName string, maxTags int) []string {
	if maxTags < 1 {
		maxTags = 1
	}

	titleL := strings.ToLower(title)
	hay := titleL + " " + strings.ToLower(text)

	if label, ok := tg.bestTopic(hay, titleL); ok {
		return []string{label}
	}

	var tags []string
	if label := tg.sourceHint(sourceName); label != "" {
		tags = append(tags, label)
		if len(tags) >= maxTags {
			return tags
		}
	}

	for _, w := range tg.salientWords(title, text, maxTags) {
		if !contains(tags, w) {
			tags = append(tags, w)
		}
		if len(tags) >= maxTags {
			break
		}
	}
	return tags
}

// bestTopic scores every topic by raw substring counts with a +2 bonus per keyword
// present in the title. Ties keep the earlier topic.
func (tg *Tagger) bestTopic(hay, titleL string) (string, bool) {
	best, bestScore := "", 0
	for _, topic := range tg.topics {
		score := 0
		for _, k := range topic.Keywords {
			n := strings.Count(hay, k)
			if n == 0 {
				continue
			}
			score += n
			if strings.Contains(titleL, k) {
				score += 2
			}
		}
		if score > bestScore {
			best, bestScore = topic.Label, score
		}
	}
	return best, bestScore > 0
}

func (tg *Tagger) sourceHint(sourceName string) string {
	if sourceName == "" {
		return ""
	}
	sn := strings.ToLower(sourceName)
	for _, h := range tg.hints {
		for _, m := range h.Match {
			if m != "" && strings.Contains(sn, strings.ToLower(m)) {
				return h.Label
			}
		}
	}
	return ""
}

type wordScore struct {
	word   string
	score  int
	length int
}

func (tg *Tagger) salientWords(title, text string, k int) []string {
	counts := make(map[string]int)
	for _, w := range tokenize(title + " " + text) {
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		if _, stop := tg.stopwords[w]; stop {
			continue
		}
		counts[w]++
	}

	inTitle := make(map[string]bool)
	for _, w := range tokenize(title) {
		inTitle[w] = true
	}

	scored := make([]wordScore, 0, len(counts))
	for w, c := range counts {
		if inTitle[w] {
			c += 2
		}
		scored = append(scored, wordScore{word: w, score: c, length: utf8.RuneCountInString(w)})
	}
	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.length != b.length {
			return a.length > b.length
		}
		return a.word < b.word
	})

	out := make([]string, 0, k)
	for _, s := range scored {
		if len(out) >= k {
			break
		}
		out = append(out, capitalize(s.word))
	}
	return out
}

// capitalize upper-cases only the first letter; "midden-oosten" becomes "Midden-oosten".
func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return cases.Upper(language.Dutch).String(string(r)) + w[size:]
}

func tokenize(s string) []string {
	tokens := tokenRe.FindAllString(s, -1)
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}
	return tokens
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
