package domain

import "github.com/lexfield/contract-insight/constants"

// Match sources, recorded so a reviewer can tell rule hits from model hits.
const (
	SourceRule  = "rule"
	SourceModel = "model"
)

// SegmentRange is an inclusive range of segment indexes.
type SegmentRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Contains reports whether the segment index falls inside the range.
func (r SegmentRange) Contains(idx int) bool {
	return idx >= r.From && idx <= r.To
}

// ClauseMatch is one identified clause. Multiple matches per type are
// permitted; a contract with three obligation clauses yields three matches.
type ClauseMatch struct {
	Type       constants.ClauseType `json:"type"`
	Segments   SegmentRange         `json:"segments"`
	Text       string               `json:"text"`
	Confidence float64              `json:"confidence"`
	Source     string               `json:"source"`
}

// Span locates an entity inside a single segment's text.
type Span struct {
	Segment int `json:"segment"`
	Offset  int `json:"offset"`
	Length  int `json:"length"`
}

// Overlaps reports whether two spans cover any common character of the
// same segment.
func (s Span) Overlaps(o Span) bool {
	if s.Segment != o.Segment {
		return false
	}
	return s.Offset < o.Offset+o.Length && o.Offset < s.Offset+s.Length
}

// EntityMatch is one named entity occurrence.
type EntityMatch struct {
	Type       constants.EntityType `json:"type"`
	Span       Span                 `json:"span"`
	Value      string               `json:"value"`
	Normalized string               `json:"normalized"`
	Confidence float64              `json:"confidence"`
	Source     string               `json:"source,omitempty"`
}
