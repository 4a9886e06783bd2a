package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"fluent-backend/domain/graph"
)

const (
	mergeTopics = `UNWIND $nodes AS n
MERGE (t:Topic {id: n.id})
SET t.label = n.label, t.timestamp = n.timestamp`

	mergeSentences = `UNWIND $nodes AS n
MERGE (s:Sentence {id: n.id})
SET s.label = n.label,
    s.terms = n.terms,
    s.context = n.context,
    s.framework = n.framework,
    s.timestamp = n.timestamp,
    s.confidence = n.confidence,
    s.quizCompleted = n.quizCompleted`

	mergeEdges = `UNWIND $edges AS e
MATCH (a {id: e.source}), (b {id: e.target})
MERGE (a)-[r:RELATED {id: e.id}]->(b)
SET r.weight = e.weight, r.type = e.type`
)

// Statement is one parameterized Cypher query
type Statement struct {
	Cypher string
	Params map[string]any
}

// Runner executes statements inside a single write transaction
type Runner interface {
	RunInTransaction(ctx context.Context, statements []Statement) error
	Close(ctx context.Context) error
}

// Config holds the Neo4j connection settings
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Exporter copies graphs into Neo4j with idempotent MERGE statements
type Exporter struct {
	runner Runner
	logger *zap.Logger
}

// NewExporter connects to Neo4j and verifies connectivity
func NewExporter(ctx context.Context, cfg Config, logger *zap.Logger) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}
	return NewExporterWithRunner(&driverRunner{driver: driver, database: cfg.Database}, logger), nil
}

// NewExporterWithRunner creates an exporter over an existing runner
func NewExporterWithRunner(runner Runner, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{runner: runner, logger: logger}
}

// Export merges every node and edge of data. Exporting the same graph
// twice leaves Neo4j unchanged.
func (e *Exporter) Export(ctx context.Context, data *graph.Data) error {
	if !data.HasNodes() {
		return nil
	}
	statements := BuildStatements(data)
	if err := e.runner.RunInTransaction(ctx, statements); err != nil {
		return fmt.Errorf("neo4j export failed: %w", err)
	}
	e.logger.Info("Exported graph to neo4j",
		zap.Int("nodes", len(data.Nodes)),
		zap.Int("edges", len(data.Edges)),
	)
	return nil
}

// Close releases the underlying driver
func (e *Exporter) Close(ctx context.Context) error {
	return e.runner.Close(ctx)
}

// BuildStatements translates data into MERGE statements. Nodes are
// written before edges so that every edge finds its endpoints.
func BuildStatements(data *graph.Data) []Statement {
	var topics, sentences []map[string]any
	for _, n := range data.Nodes {
		if n.IsTopic() {
			topics = append(topics, map[string]any{
				"id":        n.ID,
				"label":     n.Label,
				"timestamp": n.Timestamp,
			})
			continue
		}
		quiz := false
		if n.Metadata.QuizCompleted != nil {
			quiz = *n.Metadata.QuizCompleted
		}
		terms := make([]any, 0, len(n.Terms))
		for _, t := range n.Terms {
			terms = append(terms, t)
		}
		sentences = append(sentences, map[string]any{
			"id":            n.ID,
			"label":         n.Label,
			"terms":         terms,
			"context":       n.Context,
			"framework":     n.Framework,
			"timestamp":     n.Timestamp,
			"confidence":    n.Metadata.Confidence,
			"quizCompleted": quiz,
		})
	}

	statements := make([]Statement, 0, 3)
	if len(topics) > 0 {
		statements = append(statements, Statement{Cypher: mergeTopics, Params: map[string]any{"nodes": topics}})
	}
	if len(sentences) > 0 {
		statements = append(statements, Statement{Cypher: mergeSentences, Params: map[string]any{"nodes": sentences}})
	}
	if len(data.Edges) > 0 {
		edges := make([]map[string]any, 0, len(data.Edges))
		for _, edge := range data.Edges {
			edges = append(edges, map[string]any{
				"id":     edge.ID,
				"source": edge.Source,
				"target": edge.Target,
				"weight": edge.Weight,
				"type":   string(edge.Type),
			})
		}
		statements = append(statements, Statement{Cypher: mergeEdges, Params: map[string]any{"edges": edges}})
	}
	return statements
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) RunInTransaction(ctx context.Context, statements []Statement) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range statements {
			if _, err := tx.Run(ctx, st.Cypher, st.Params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *driverRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
