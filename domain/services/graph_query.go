package services

import (
	"sort"
	"time"

	"fluent-backend/domain/graph"
	"fluent-backend/domain/specifications"
)

// DateRange spans the capture dates of a graph as YYYY-MM-DD strings
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DomainCount is the number of captured sentences under a context
type DomainCount struct {
	Context string `json:"context"`
	Count   int    `json:"count"`
}

// DomainStats summarizes one context of a graph
type DomainStats struct {
	Context       string `json:"context"`
	SentenceCount int    `json:"sentenceCount"`
	NodeCount     int    `json:"nodeCount"`
	LastUpdated   string `json:"lastUpdated,omitempty"`
}

// Topics returns the sorted distinct topic labels and sentence contexts
func Topics(data *graph.Data) []string {
	set := make(map[string]struct{})
	for _, n := range data.Nodes {
		if n.IsTopic() {
			set[n.Label] = struct{}{}
		} else if n.Context != "" {
			set[n.Context] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Frameworks returns the sorted distinct non-empty frameworks
func Frameworks(data *graph.Data) []string {
	set := make(map[string]struct{})
	for _, n := range data.Nodes {
		if n.Framework != "" {
			set[n.Framework] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Subgraph narrows the graph to a single topic. The All topic returns data
// itself. TopicCount of the result is 1 when the topic node exists and 0
// otherwise.
func Subgraph(topic string, data *graph.Data) *graph.Data {
	if topic == graph.All {
		return data
	}

	topicSpec := specifications.TopicLabeled(topic)
	found := false
	for _, n := range data.Nodes {
		if topicSpec.IsSatisfiedBy(n) {
			found = true
			break
		}
	}

	out := keep(data, specifications.InContext(topic).Or(topicSpec))
	out.Stats.TopicCount = 0
	if found {
		out.Stats.TopicCount = 1
	}
	return out
}

// FilterByFramework keeps topic nodes and nodes tagged with framework
func FilterByFramework(framework string, data *graph.Data) *graph.Data {
	if framework == graph.All {
		return data
	}
	return keep(data, specifications.IsTopicNode().Or(specifications.UsesFramework(framework)))
}

// LearningPath keeps topic nodes and nodes captured on a day within
// [startDate, endDate]. Unparseable bounds match no sentence.
func LearningPath(startDate, endDate string, data *graph.Data) *graph.Data {
	start := graph.ParseTimestamp(startDate)
	end := graph.ParseTimestamp(endDate)
	if start.IsZero() || end.IsZero() {
		return keep(data, specifications.IsTopicNode())
	}
	return LearningPathBetween(start, end, data)
}

// LearningPathBetween is LearningPath over already parsed bounds
func LearningPathBetween(start, end time.Time, data *graph.Data) *graph.Data {
	return keep(data, specifications.IsTopicNode().Or(specifications.CapturedBetween(start, end)))
}

// QuizTrail keeps topic nodes and nodes whose quiz was completed
func QuizTrail(data *graph.Data) *graph.Data {
	return keep(data, specifications.IsTopicNode().Or(specifications.QuizCompleted()))
}

// HighConfidence keeps topic nodes and nodes with confidence of 70 or more
func HighConfidence(data *graph.Data) *graph.Data {
	return keep(data, specifications.IsTopicNode().Or(
		specifications.MinConfidence(specifications.HighConfidenceThreshold)))
}

// GetDateRange returns the span of sentence capture dates, or nil when the
// graph holds no sentence with a readable timestamp.
func GetDateRange(data *graph.Data) *DateRange {
	var minT, maxT time.Time
	for _, n := range data.Nodes {
		if !n.IsSentence() {
			continue
		}
		ts := graph.ParseTimestamp(n.Timestamp)
		if ts.IsZero() {
			continue
		}
		if minT.IsZero() || ts.Before(minT) {
			minT = ts
		}
		if maxT.IsZero() || ts.After(maxT) {
			maxT = ts
		}
	}
	if minT.IsZero() {
		return nil
	}
	return &DateRange{Start: graph.CalendarDate(minT), End: graph.CalendarDate(maxT)}
}

// AvailableDomains counts sentences per context, sorted by context
func AvailableDomains(sentences []graph.CapturedSentence) []DomainCount {
	counts := make(map[string]int)
	for _, s := range sentences {
		counts[s.TopicLabel()]++
	}
	out := make([]DomainCount, 0, len(counts))
	for _, ctx := range sortedKeys(counts) {
		out = append(out, DomainCount{Context: ctx, Count: counts[ctx]})
	}
	return out
}

// GetDomainStats summarizes the subgraph of one context
func GetDomainStats(context string, data *graph.Data) DomainStats {
	sub := Subgraph(context, data)
	stats := DomainStats{
		Context:       context,
		SentenceCount: sub.Stats.TotalSentences,
		NodeCount:     len(sub.Nodes),
	}
	var latest time.Time
	for _, n := range sub.Nodes {
		if !n.IsSentence() {
			continue
		}
		if ts := graph.ParseTimestamp(n.Timestamp); ts.After(latest) {
			latest = ts
			stats.LastUpdated = n.Timestamp
		}
	}
	return stats
}

// View selects one of the derived single-purpose views
type View string

const (
	ViewFull           View = ""
	ViewQuizTrail      View = "quiz"
	ViewHighConfidence View = "confidence"
)

// QueryOptions chains the graph filters in a fixed order: topic, framework,
// date range, then view. Empty fields are skipped.
type QueryOptions struct {
	Topic     string
	Framework string
	StartDate string
	EndDate   string
	View      View
}

// Apply runs the configured filters over data
func (o QueryOptions) Apply(data *graph.Data) *graph.Data {
	out := data
	if o.Topic != "" {
		out = Subgraph(o.Topic, out)
	}
	if o.Framework != "" {
		out = FilterByFramework(o.Framework, out)
	}
	if o.StartDate != "" || o.EndDate != "" {
		start, end := o.StartDate, o.EndDate
		if start == "" || end == "" {
			if r := GetDateRange(out); r != nil {
				if start == "" {
					start = r.Start
				}
				if end == "" {
					end = r.End
				}
			}
		}
		out = LearningPath(start, end, out)
	}
	switch o.View {
	case ViewQuizTrail:
		out = QuizTrail(out)
	case ViewHighConfidence:
		out = HighConfidence(out)
	}
	return out
}

// keep returns the nodes satisfying spec together with the edges whose
// endpoints both survive, with stats recomputed from the result.
func keep(data *graph.Data, spec specifications.NodeSpecification) *graph.Data {
	nodes := specifications.Select(data.Nodes, spec)

	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = struct{}{}
	}

	edges := make([]graph.Edge, 0, len(data.Edges))
	for _, e := range data.Edges {
		_, src := ids[e.Source]
		_, dst := ids[e.Target]
		if src && dst {
			edges = append(edges, e)
		}
	}

	out := &graph.Data{Nodes: nodes, Edges: edges}
	return out.Recompute()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
