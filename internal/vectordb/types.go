package vectordb

import "time"

// Config controls the Qdrant client.
type Config struct {
	URL        string
	Collection string
	Timeout    time.Duration
	// Dimension is the expected vector size for the collection.
	Dimension int
}

// Point is a single vector point to insert.
type Point struct {
	ID      uint64                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertResponse captures the basic Qdrant upsert response.
type UpsertResponse struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}
