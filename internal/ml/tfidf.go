package ml

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"
)

var englishStopWords = makeSet(strings.Fields(`
a about above across after afterwards again against all almost alone along
already also although always am among amongst amount an and another any
anyhow anyone anything anyway anywhere are around as at back be became
because become becomes becoming been before beforehand behind being below
beside besides between beyond both bottom but by call can cannot could
did do does doing done down due during each eg either else elsewhere
enough etc even ever every everyone everything everywhere except few for
former formerly from front full further get give go had has hasnt have
having he hence her here hereafter hereby herein hereupon hers herself him
himself his how however ie if in inc indeed into is it its itself just
keep last latter latterly least less ltd made many may me meanwhile might
mine more moreover most mostly move much must my myself namely neither
never nevertheless next no nobody none noone nor not nothing now nowhere
of off often on once one only onto or other others otherwise our ours
ourselves out over own part per perhaps please put rather re same see
seem seemed seeming seems several she should show side since so some
somehow someone something sometime sometimes somewhere still such take
than that the their theirs them themselves then thence there thereafter
thereby therefore therein thereupon these they this those though through
throughout thru thus to together too top toward towards under until up
upon us very via was we well were what whatever when whence whenever where
whereafter whereas whereby wherein whereupon wherever whether which while
whither who whoever whole whom whose why will with within without would
yet you your yours yourself yourselves
`))

func makeSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// tokenize normalizes text to NFC, case folds it and splits it into runs of
// letters and digits. Single-rune tokens and English stop words are dropped.
func tokenize(text string) []string {
	folded := cases.Fold().String(norm.NFC.String(text))

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, stop := englishStopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// tfidfVectorizer holds a sorted vocabulary and smoothed inverse document
// frequencies.
type tfidfVectorizer struct {
	Vocabulary []string
	IDF        []float64

	index map[string]int
}

func fitTFIDF(docs [][]string) *tfidfVectorizer {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, term := range doc {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	vocabulary := make([]string, 0, len(df))
	for term := range df {
		vocabulary = append(vocabulary, term)
	}
	sort.Strings(vocabulary)

	n := float64(len(docs))
	idf := make([]float64, len(vocabulary))
	for i, term := range vocabulary {
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	v := &tfidfVectorizer{Vocabulary: vocabulary, IDF: idf}
	v.buildIndex()
	return v
}

func (v *tfidfVectorizer) buildIndex() {
	v.index = make(map[string]int, len(v.Vocabulary))
	for i, term := range v.Vocabulary {
		v.index[term] = i
	}
}

// transform returns one L2-normalized sparse row per document. Terms outside
// the vocabulary are ignored.
func (v *tfidfVectorizer) transform(docs [][]string) *sparseMatrix {
	rows := make([][]sparseEntry, len(docs))
	for i, doc := range docs {
		counts := make(map[int]float64)
		for _, term := range doc {
			if j, ok := v.index[term]; ok {
				counts[j]++
			}
		}

		entries := make([]sparseEntry, 0, len(counts))
		values := make([]float64, 0, len(counts))
		for j, tf := range counts {
			w := tf * v.IDF[j]
			entries = append(entries, sparseEntry{col: j, value: w})
			values = append(values, w)
		}
		if n := floats.Norm(values, 2); n > 0 {
			for k := range entries {
				entries[k].value /= n
			}
		}
		rows[i] = entries
	}
	return newSparseMatrix(len(docs), len(v.Vocabulary), rows)
}
