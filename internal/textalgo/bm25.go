package textalgo

// BM25Params holds the Okapi BM25 tuning constants (spec.md §4.F),
// mirrored from pkg/config.BM25Config so the scorer doesn't import config
// and create a dependency cycle.
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25Params returns k1=1.2, b=0.75, the conventional defaults
// spec.md §4.F names explicitly.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.2, B: 0.75}
}

// BM25Score scores one document against a query's tokens using the
// standard Okapi BM25 formula:
//
//	score = sum over query terms of IDF(term) * (tf*(k1+1)) / (tf + k1*(1 - b + b*(docLen/avgDocLen)))
func BM25Score(docTermFreq map[string]int, docLength int, queryTokens []string, c *Corpus, p BM25Params) float64 {
	if c.AvgDocLength == 0 {
		return 0
	}
	var score float64
	lengthNorm := 1 - p.B + p.B*(float64(docLength)/c.AvgDocLength)
	for _, term := range queryTokens {
		tf := float64(docTermFreq[term])
		if tf == 0 {
			continue
		}
		numerator := tf * (p.K1 + 1)
		denominator := tf + p.K1*lengthNorm
		score += c.IDF(term) * (numerator / denominator)
	}
	return score
}
