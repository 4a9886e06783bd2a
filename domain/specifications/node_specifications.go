package specifications

import (
	"time"

	"fluent-backend/domain/graph"
)

// HighConfidenceThreshold is the minimum confidence of a high-confidence sentence
const HighConfidenceThreshold = 70

// NodeSpecification is a specification over graph nodes
type NodeSpecification = Specification[graph.Node]

// IsTopicNode matches topic cluster nodes
func IsTopicNode() NodeSpecification {
	return NewBaseSpecification(func(n graph.Node) bool {
		return n.IsTopic()
	})
}

// IsSentenceNode matches captured sentence nodes
func IsSentenceNode() NodeSpecification {
	return NewBaseSpecification(func(n graph.Node) bool {
		return n.IsSentence()
	})
}

// TopicLabeled matches the topic node whose label equals label
func TopicLabeled(label string) NodeSpecification {
	return IsTopicNode().And(NewBaseSpecification(func(n graph.Node) bool {
		return n.Label == label
	}))
}

// InContext matches sentence nodes captured under context
func InContext(context string) NodeSpecification {
	return IsSentenceNode().And(NewBaseSpecification(func(n graph.Node) bool {
		return n.Context == context
	}))
}

// UsesFramework matches nodes tagged with framework
func UsesFramework(framework string) NodeSpecification {
	return NewBaseSpecification(func(n graph.Node) bool {
		return n.Framework == framework
	})
}

// CapturedBetween matches nodes whose timestamp falls on a calendar day in
// [start, end]. Nodes with unparseable timestamps never match.
func CapturedBetween(start, end time.Time) NodeSpecification {
	from, to := graph.StartOfDay(start), graph.StartOfDay(end)
	return NewBaseSpecification(func(n graph.Node) bool {
		ts := graph.ParseTimestamp(n.Timestamp)
		if ts.IsZero() {
			return false
		}
		day := graph.StartOfDay(ts)
		return !day.Before(from) && !day.After(to)
	})
}

// QuizCompleted matches nodes whose quiz has been completed
func QuizCompleted() NodeSpecification {
	return NewBaseSpecification(func(n graph.Node) bool {
		return n.Metadata.QuizCompleted
	})
}

// MinConfidence matches nodes with confidence of at least threshold
func MinConfidence(threshold float64) NodeSpecification {
	return NewBaseSpecification(func(n graph.Node) bool {
		return n.Metadata.Confidence >= threshold
	})
}
