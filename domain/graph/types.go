package graph

import (
	"time"
)

// DefaultContext is applied to sentences captured without a context
const DefaultContext = "General"

// All is the filter value that disables topic and framework filtering
const All = "All"

// NodeType distinguishes synthetic topic nodes from captured sentence nodes
type NodeType string

const (
	NodeTypeTopic    NodeType = "topic"
	NodeTypeSentence NodeType = "sentence"
)

// EdgeType describes which signals linked two nodes
type EdgeType string

const (
	EdgeTypeTermMatch    EdgeType = "term-match"
	EdgeTypeContextMatch EdgeType = "context-match"
	EdgeTypeBoth         EdgeType = "both"
)

// Relation is a single extracted relationship between two concepts
type Relation struct {
	Subject   string `json:"subject,omitempty"`
	Predicate string `json:"predicate,omitempty"`
	Object    string `json:"object,omitempty"`
}

// Extract holds the optional enrichment produced by the capture pipeline
type Extract struct {
	Explanation string     `json:"explanation,omitempty"`
	Concepts    []string   `json:"concepts,omitempty"`
	Relations   []Relation `json:"relations,omitempty"`
}

// CapturedSentence is a unit of user input produced by the capture pipeline.
// It is immutable once captured.
type CapturedSentence struct {
	ID               string   `json:"id"`
	Sentence         string   `json:"sentence"`
	Terms            []string `json:"terms"`
	Context          string   `json:"context"`
	Framework        string   `json:"framework,omitempty"`
	SecondaryContext string   `json:"secondaryContext,omitempty"`
	Confidence       float64  `json:"confidence"`
	Timestamp        string   `json:"timestamp"`
	Extract          *Extract `json:"asi_extract,omitempty"`
}

// TopicLabel returns the sentence context or DefaultContext when it is blank
func (s CapturedSentence) TopicLabel() string {
	if s.Context == "" {
		return DefaultContext
	}
	return s.Context
}

// Normalized returns a copy with defaults applied to missing fields
func (s CapturedSentence) Normalized() CapturedSentence {
	s.Context = s.TopicLabel()
	if s.Terms == nil {
		s.Terms = []string{}
	}
	return s
}

// Time parses the capture timestamp. The zero time is returned for
// timestamps that are not ISO-8601.
func (s CapturedSentence) Time() time.Time {
	return ParseTimestamp(s.Timestamp)
}

// NodeMetadata is the fixed set of attributes attached to every node
type NodeMetadata struct {
	Confidence    float64 `json:"confidence"`
	QuizCompleted bool    `json:"quizCompleted"`
	Explanation   *string `json:"explanation,omitempty"`
}

// Node is either a topic node or a sentence node
type Node struct {
	ID        string       `json:"id"`
	Type      NodeType     `json:"type"`
	Label     string       `json:"label"`
	Terms     []string     `json:"terms,omitempty"`
	Context   string       `json:"context,omitempty"`
	Framework string       `json:"framework,omitempty"`
	Timestamp string       `json:"timestamp"`
	Metadata  NodeMetadata `json:"metadata"`
}

// IsTopic reports whether the node is a topic cluster node
func (n Node) IsTopic() bool { return n.Type == NodeTypeTopic }

// IsSentence reports whether the node represents a captured sentence
func (n Node) IsSentence() bool { return n.Type == NodeTypeSentence }

// Edge links two nodes with a weight in [0, 1]
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Weight float64  `json:"weight"`
	Type   EdgeType `json:"type"`
}

// Stats are derived from the node and edge sets they accompany
type Stats struct {
	TotalSentences  int     `json:"totalSentences"`
	TopicCount      int     `json:"topicCount"`
	AvgLinkStrength float64 `json:"avgLinkStrength"`
}

// Data is the aggregate root persisted and queried by the graph services
type Data struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats Stats  `json:"stats"`
}

// Empty returns a graph with no nodes, no edges and zeroed stats
func Empty() *Data {
	return &Data{
		Nodes: []Node{},
		Edges: []Edge{},
	}
}

// HasNodes reports whether the graph contains at least one node
func (d *Data) HasNodes() bool {
	return d != nil && len(d.Nodes) > 0
}

// NodeIDs returns the set of node ids in the graph
func (d *Data) NodeIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		ids[n.ID] = struct{}{}
	}
	return ids
}

// Clone returns a deep copy so callers can modify the result freely
func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	out := &Data{
		Nodes: make([]Node, len(d.Nodes)),
		Edges: make([]Edge, len(d.Edges)),
		Stats: d.Stats,
	}
	for i, n := range d.Nodes {
		if n.Terms != nil {
			n.Terms = append([]string(nil), n.Terms...)
		}
		if n.Metadata.Explanation != nil {
			e := *n.Metadata.Explanation
			n.Metadata.Explanation = &e
		}
		out.Nodes[i] = n
	}
	copy(out.Edges, d.Edges)
	return out
}

// Normalize replaces nil node and edge slices with empty ones so the
// graph always serializes as arrays.
func (d *Data) Normalize() *Data {
	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	if d.Edges == nil {
		d.Edges = []Edge{}
	}
	return d
}
