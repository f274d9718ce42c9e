package textalgo

import "math"

// Corpus is the minimal statistics a TF-IDF or BM25 scorer needs: the
// document count, the average document length, and how many documents
// contain each term. internal/search builds one with NewCorpus on every
// query, from the per-entity term-frequency tables it keeps current.
type Corpus struct {
	DocCount       int
	DocFreq        map[string]int // term -> number of documents containing it
	AvgDocLength   float64
}

// NewCorpus computes document frequencies and average length from a set
// of per-document term-frequency maps.
func NewCorpus(docs []map[string]int) *Corpus {
	c := &Corpus{DocCount: len(docs), DocFreq: make(map[string]int)}
	var totalLen int
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for term, count := range doc {
			totalLen += count
			if _, ok := seen[term]; !ok {
				c.DocFreq[term]++
				seen[term] = struct{}{}
			}
		}
	}
	if c.DocCount > 0 {
		c.AvgDocLength = float64(totalLen) / float64(c.DocCount)
	}
	return c
}

// IDF returns the inverse document frequency of term: log(N/df), per
// spec.md §4.D. Only called for terms with a nonzero count in the
// document being scored, which guarantees df >= 1; df == 0 is guarded
// defensively rather than dividing by zero.
func (c *Corpus) IDF(term string) float64 {
	df := c.DocFreq[term]
	if df == 0 {
		return 0
	}
	return math.Log(float64(c.DocCount) / float64(df))
}

// TFIDF scores a single document's term-frequency map against a query's
// token list, summing tf(term)*idf(term) for every query term present in
// the document. TF is length-normalized: count(term)/len(doc_tokens)
// (spec.md §4.D).
func TFIDF(docTermFreq map[string]int, queryTokens []string, c *Corpus) float64 {
	var docLen int
	for _, count := range docTermFreq {
		docLen += count
	}
	var score float64
	for _, term := range queryTokens {
		count := docTermFreq[term]
		if count == 0 {
			continue
		}
		tf := float64(count) / float64(docLen)
		score += tf * c.IDF(term)
	}
	return score
}
