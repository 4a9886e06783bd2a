package events

import (
	"time"

	"fluent-backend/domain/graph"
)

// Event types raised by the graph storage
const (
	GraphSaved   = "graph.saved"
	GraphMerged  = "graph.merged"
	GraphCleared = "graph.cleared"
)

// GraphChanged is raised after the stored graph was replaced, merged into or cleared
type GraphChanged struct {
	EventType  string      `json:"event_type"`
	Namespace  string      `json:"namespace"`
	Stats      graph.Stats `json:"stats"`
	NewNodes   int         `json:"new_nodes"`
	NewEdges   int         `json:"new_edges"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// NewGraphChanged creates a GraphChanged event stamped with now
func NewGraphChanged(eventType, namespace string, stats graph.Stats, newNodes, newEdges int) GraphChanged {
	return GraphChanged{
		EventType:  eventType,
		Namespace:  namespace,
		Stats:      stats,
		NewNodes:   newNodes,
		NewEdges:   newEdges,
		OccurredAt: time.Now().UTC(),
	}
}
