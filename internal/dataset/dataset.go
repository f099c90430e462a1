// Package dataset holds the ordered collection of data points being explored.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/todmy/embedscope/internal/neighbors"
	"github.com/todmy/embedscope/internal/similarity"
	"github.com/todmy/embedscope/pkg/models"
)

var (
	ErrDuplicateID = fmt.Errorf("%w: duplicate point id", similarity.ErrInvalidInput)
	ErrMalformed   = fmt.Errorf("%w: malformed dataset", similarity.ErrInvalidInput)
)

// Set is an ordered collection of data points indexed by id
type Set struct {
	points []models.DataPoint
	index  map[string]int
}

// New creates a set from points. Embeddings must be non-empty and share one dimension.
func New(points []models.DataPoint) (*Set, error) {
	s := &Set{
		points: make([]models.DataPoint, len(points)),
		index:  make(map[string]int, len(points)),
	}
	for i, p := range points {
		if _, ok := s.index[p.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
		}
		p.Embedding = append([]float64(nil), p.Embedding...)
		s.points[i] = p
		s.index[p.ID] = i
	}

	if _, err := similarity.Validate(s.Embeddings()); err != nil {
		return nil, err
	}
	return s, nil
}

type entry struct {
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
	Hue       any       `json:"hue_var"`
}

// Decode reads a JSON object mapping point ids to {text, embedding, hue_var}.
// Points keep the order in which their keys appear in the document.
func Decode(r io.Reader) (*Set, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}

	var points []models.DataPoint
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected point id", ErrMalformed)
		}

		var e entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("%w: point %q: %v", ErrMalformed, id, err)
		}
		points = append(points, models.DataPoint{
			ID:        id,
			Text:      e.Text,
			Hue:       e.Hue,
			Embedding: e.Embedding,
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return New(points)
}

// UnmarshalJSON implements json.Unmarshaler using Decode
func (s *Set) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

// MarshalJSON writes the set in the same keyed form Decode reads, in point order
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range s.points {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(entry{Text: p.Text, Embedding: p.Embedding, Hue: p.Hue})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Len returns the number of points
func (s *Set) Len() int {
	return len(s.points)
}

// Points returns the points in order
func (s *Set) Points() []models.DataPoint {
	return s.points
}

// At returns the i-th point
func (s *Set) At(i int) models.DataPoint {
	return s.points[i]
}

// IndexOf returns the position of the point with id
func (s *Set) IndexOf(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Get returns the point with id
func (s *Set) Get(id string) (models.DataPoint, bool) {
	i, ok := s.index[id]
	if !ok {
		return models.DataPoint{}, false
	}
	return s.points[i], true
}

// Embeddings returns the embedding of every point in order
func (s *Set) Embeddings() [][]float64 {
	out := make([][]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Embedding
	}
	return out
}

// Dimension returns the embedding dimension
func (s *Set) Dimension() int {
	if len(s.points) == 0 {
		return 0
	}
	return len(s.points[0].Embedding)
}

// Subset returns a new set holding the members of sel in their original order
func (s *Set) Subset(sel neighbors.Set) (*Set, error) {
	var points []models.DataPoint
	for _, i := range sel.Sorted() {
		if i < 0 || i >= len(s.points) {
			return nil, fmt.Errorf("%w: %d not in [0,%d)", neighbors.ErrIndexOutOfRange, i, len(s.points))
		}
		points = append(points, s.points[i])
	}
	return New(points)
}
