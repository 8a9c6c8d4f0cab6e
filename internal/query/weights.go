package query

// Weights are the fusion weights for one query. They always sum to 1.
type Weights struct {
	Lexical float64 `json:"lexical"`
	Dense   float64 `json:"dense"`
}

// ChooseWeights maps features to fusion weights with a fixed decision
// tree, first matching rule wins.
func ChooseWeights(f Features) Weights {
	switch {
	case f.IsAcronym || f.HasID:
		return Weights{Lexical: 0.8, Dense: 0.2}
	case f.HasSpecificEntity:
		if f.TokenLen > 4 {
			return Weights{Lexical: 0.7, Dense: 0.3}
		}
		return Weights{Lexical: 0.6, Dense: 0.4}
	case f.HasYear || f.HasNumber:
		return Weights{Lexical: 0.65, Dense: 0.35}
	case f.Abstract:
		return Weights{Lexical: 0.3, Dense: 0.7}
	case f.TokenLen <= 3 && !f.HasNamedEntity:
		return Weights{Lexical: 0.3, Dense: 0.7}
	default:
		return Weights{Lexical: 0.45, Dense: 0.55}
	}
}
