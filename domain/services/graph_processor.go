package services

import (
	"math"
	"strings"
	"time"

	"fluent-backend/domain/graph"
)

// WeightConfig configures the sentence similarity score
type WeightConfig struct {
	TermWeight     float64 // Multiplier applied to the term Jaccard ratio
	ContextBonus   float64 // Added when both sentences share a context
	FrameworkBonus float64 // Added when both sentences name the same framework
	Threshold      float64 // Minimum weight for a sentence-sentence edge
}

// DefaultWeightConfig returns the weighting used by the capture pipeline
func DefaultWeightConfig() *WeightConfig {
	return &WeightConfig{
		TermWeight:     0.5,
		ContextBonus:   0.3,
		FrameworkBonus: 0.2,
		Threshold:      0.3,
	}
}

// EdgeWeight is the uncapped similarity between two sentences
type EdgeWeight struct {
	Weight      float64
	Type        graph.EdgeType
	SharedTerms int
}

// TopicCluster groups sentence ids under one topic label
type TopicCluster struct {
	Label       string
	SentenceIDs []string
}

// GraphProcessor turns captured sentences into graph data.
// It is stateless apart from its configuration and is safe for concurrent use.
type GraphProcessor struct {
	config *WeightConfig
	now    func() time.Time
}

// ProcessorOption customizes a GraphProcessor
type ProcessorOption func(*GraphProcessor)

// WithClock overrides the clock used to stamp topic nodes
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *GraphProcessor) {
		p.now = now
	}
}

// NewGraphProcessor creates a processor, falling back to DefaultWeightConfig
func NewGraphProcessor(config *WeightConfig, opts ...ProcessorOption) *GraphProcessor {
	if config == nil {
		config = DefaultWeightConfig()
	}
	p := &GraphProcessor{config: config, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CalculateEdgeWeight scores two sentences by shared terms, context and framework
func (p *GraphProcessor) CalculateEdgeWeight(a, b graph.CapturedSentence) EdgeWeight {
	termsA := termSet(a.Terms)
	termsB := termSet(b.Terms)

	shared := 0
	for t := range termsA {
		if _, ok := termsB[t]; ok {
			shared++
		}
	}
	union := len(termsA) + len(termsB) - shared

	var termScore float64
	if union > 0 {
		termScore = float64(shared) / float64(union) * p.config.TermWeight
	}

	var contextBonus, frameworkBonus float64
	if a.TopicLabel() == b.TopicLabel() {
		contextBonus = p.config.ContextBonus
	}
	if a.Framework != "" && b.Framework != "" && a.Framework == b.Framework {
		frameworkBonus = p.config.FrameworkBonus
	}

	edgeType := graph.EdgeTypeContextMatch
	switch {
	case shared > 0 && (contextBonus > 0 || frameworkBonus > 0):
		edgeType = graph.EdgeTypeBoth
	case shared > 0:
		edgeType = graph.EdgeTypeTermMatch
	}

	return EdgeWeight{
		Weight:      termScore + contextBonus + frameworkBonus,
		Type:        edgeType,
		SharedTerms: shared,
	}
}

// ClusterByTopic groups sentences by topic id in first-seen order.
// Contexts differing only in case or spacing share a cluster, labelled
// with the first spelling seen.
func (p *GraphProcessor) ClusterByTopic(sentences []graph.CapturedSentence) []TopicCluster {
	index := make(map[string]int)
	var clusters []TopicCluster
	for _, s := range sentences {
		label := s.TopicLabel()
		id := graph.TopicID(label)
		i, ok := index[id]
		if !ok {
			i = len(clusters)
			index[id] = i
			clusters = append(clusters, TopicCluster{Label: label})
		}
		clusters[i].SentenceIDs = append(clusters[i].SentenceIDs, s.ID)
	}
	return clusters
}

// ProcessSentencesIntoGraph builds a complete graph from scratch.
// Every pair of sentences is scored, so cost grows quadratically.
func (p *GraphProcessor) ProcessSentencesIntoGraph(sentences []graph.CapturedSentence) *graph.Data {
	sentences = uniqueSentences(sentences)
	if len(sentences) == 0 {
		return graph.Empty()
	}

	var sentenceEdges []graph.Edge
	for i := 0; i < len(sentences); i++ {
		for j := i + 1; j < len(sentences); j++ {
			if e, ok := p.link(sentences[i], sentences[j]); ok {
				sentenceEdges = append(sentenceEdges, e)
			}
		}
	}

	clusters := p.ClusterByTopic(sentences)
	data := p.assemble(sentences, clusters, sentenceEdges)
	data.Stats = graph.Stats{
		TotalSentences:  len(sentences),
		TopicCount:      len(clusters),
		AvgLinkStrength: graph.AverageLinkStrength(data.Edges),
	}
	return data
}

// ProcessNewSentencesIncremental links newly captured sentences to each other
// and to existing ones without re-pairing existing sentences among
// themselves. The stats of the result describe only the new sentences.
func (p *GraphProcessor) ProcessNewSentencesIncremental(newSentences, existing []graph.CapturedSentence) *graph.Data {
	newSentences = uniqueSentences(newSentences)
	if len(newSentences) == 0 {
		return graph.Empty()
	}

	fresh := make(map[string]struct{}, len(newSentences))
	for _, s := range newSentences {
		fresh[s.ID] = struct{}{}
	}

	var sentenceEdges []graph.Edge
	for i := 0; i < len(newSentences); i++ {
		for j := i + 1; j < len(newSentences); j++ {
			if e, ok := p.link(newSentences[i], newSentences[j]); ok {
				sentenceEdges = append(sentenceEdges, e)
			}
		}
	}
	for _, n := range newSentences {
		for _, old := range existing {
			if _, dup := fresh[old.ID]; dup {
				continue
			}
			if e, ok := p.link(n, old.Normalized()); ok {
				sentenceEdges = append(sentenceEdges, e)
			}
		}
	}

	clusters := p.ClusterByTopic(newSentences)
	data := p.assemble(newSentences, clusters, sentenceEdges)
	data.Stats = graph.Stats{
		TotalSentences:  len(newSentences),
		TopicCount:      len(clusters),
		AvgLinkStrength: graph.AverageLinkStrength(data.Edges),
	}
	return data
}

// assemble orders topic nodes before sentence nodes and topic edges before
// sentence edges.
func (p *GraphProcessor) assemble(sentences []graph.CapturedSentence, clusters []TopicCluster, sentenceEdges []graph.Edge) *graph.Data {
	stamp := graph.FormatTimestamp(p.now())

	nodes := make([]graph.Node, 0, len(clusters)+len(sentences))
	edges := make([]graph.Edge, 0, len(sentences)+len(sentenceEdges))
	for _, c := range clusters {
		topicID := graph.TopicID(c.Label)
		nodes = append(nodes, graph.Node{
			ID:        topicID,
			Type:      graph.NodeTypeTopic,
			Label:     c.Label,
			Timestamp: stamp,
			Metadata:  graph.NodeMetadata{Confidence: 100},
		})
		for _, sid := range c.SentenceIDs {
			edges = append(edges, graph.Edge{
				ID:     graph.EdgeID(topicID, sid),
				Source: topicID,
				Target: sid,
				Weight: 1,
				Type:   graph.EdgeTypeContextMatch,
			})
		}
	}
	for _, s := range sentences {
		nodes = append(nodes, SentenceNode(s))
	}
	edges = append(edges, sentenceEdges...)

	return &graph.Data{Nodes: nodes, Edges: edges}
}

func (p *GraphProcessor) link(a, b graph.CapturedSentence) (graph.Edge, bool) {
	w := p.CalculateEdgeWeight(a, b)
	if w.Weight < p.config.Threshold {
		return graph.Edge{}, false
	}
	return graph.Edge{
		ID:     graph.EdgeID(a.ID, b.ID),
		Source: a.ID,
		Target: b.ID,
		Weight: math.Min(w.Weight, 1),
		Type:   w.Type,
	}, true
}

// SentenceNode maps a captured sentence to its graph node
func SentenceNode(s graph.CapturedSentence) graph.Node {
	s = s.Normalized()
	node := graph.Node{
		ID:        s.ID,
		Type:      graph.NodeTypeSentence,
		Label:     s.Sentence,
		Terms:     s.Terms,
		Context:   s.Context,
		Framework: s.Framework,
		Timestamp: s.Timestamp,
		Metadata:  graph.NodeMetadata{Confidence: s.Confidence},
	}
	if s.Extract != nil && s.Extract.Explanation != "" {
		explanation := s.Extract.Explanation
		node.Metadata.Explanation = &explanation
	}
	return node
}

// uniqueSentences normalizes sentences and drops repeated ids, keeping the first
func uniqueSentences(sentences []graph.CapturedSentence) []graph.CapturedSentence {
	seen := make(map[string]struct{}, len(sentences))
	out := make([]graph.CapturedSentence, 0, len(sentences))
	for _, s := range sentences {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s.Normalized())
	}
	return out
}

func termSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}
