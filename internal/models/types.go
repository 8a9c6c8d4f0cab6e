package models

// Document is a corpus record as stored in both indexes.
// Indexed documents always carry ID, Text, and an L2-normalized
// 384-dimension Vector; the remaining fields are enrichment.
type Document struct {
	ID       uint64    `json:"id"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Date     string    `json:"date,omitempty"`
	Entities []string  `json:"entities,omitempty"`
	Places   []string  `json:"places,omitempty"`
	Years    []int     `json:"years,omitempty"`
}

// Hit is a single retrieval result from either index, ordered by
// the backend's own relevance.
type Hit struct {
	ID   uint64 `json:"id"`
	Text string `json:"text"`
}

// Chunk is a fragment of a document's text carrying the fused score
// of its source document. When several documents yield the same text
// the highest score wins.
type Chunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Decomposition is the LLM's split of a compound question. Subs is
// empty when the query was not decomposed.
type Decomposition struct {
	Main string   `json:"main_question"`
	Subs []string `json:"sub_questions"`
}

// Interpretation is a declarative phrase appended to an ambiguous
// query to disambiguate it.
type Interpretation struct {
	Label         string `json:"label"`
	Clarification string `json:"clarification"`
}

// Clarification is the clarifier's verdict for one query.
type Clarification struct {
	NeedsClarification bool             `json:"needs_clarification"`
	Interpretations    []Interpretation `json:"interpretations"`
}

// Metadata holds the enriched hints extracted from a query or a
// document: named entities, places, and the years mentioned.
type Metadata struct {
	Entities []string `json:"entities"`
	Places   []string `json:"places"`
	Years    []int    `json:"years"`
}

// ResultStats aggregates filter statistics with the token and
// citation counts of the final answer.
type ResultStats struct {
	InputDocs       int   `json:"input_docs"`
	KeptDocs        int   `json:"kept_docs"`
	RejectedShort   int   `json:"rejected_short"`
	RejectedOverlap int   `json:"rejected_overlap"`
	Overlaps        []int `json:"overlaps,omitempty"`
	TokensUsed      int   `json:"tokens_used"`
	Citations       int   `json:"citations"`
}

// Result is the answer record for one request. The orchestrator owns
// a single Result per request and mutates it in place.
type Result struct {
	OriginalQuery string         `json:"original_query"`
	Answer        string         `json:"answer"`
	Chunks        []Chunk        `json:"chunks"`
	Decomposition *Decomposition `json:"decomposition,omitempty"`
	Clarification *Clarification `json:"clarification,omitempty"`
	Stats         ResultStats    `json:"stats"`
}
