// Package repositories holds the Neo4j-backed repositories.
package repositories

import (
	"context"
	"sort"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	driver "github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
)

// Graph model: (:Patent {id})-[:CITES]->(:Patent {id}).
const (
	queryBackward = `
		MATCH (p:Patent {id: $id})-[:CITES]->(c:Patent)
		RETURN DISTINCT c.id AS id
	`
	queryForward = `
		MATCH (c:Patent)-[:CITES]->(p:Patent {id: $id})
		RETURN DISTINCT c.id AS id
	`
	queryUpsert = `
		UNWIND $batch AS row
		MERGE (a:Patent {id: row.citing})
		MERGE (b:Patent {id: row.cited})
		MERGE (a)-[r:CITES]->(b)
		ON CREATE SET r.created_at = datetime()
	`
)

// DefaultUpsertBatch bounds the rows sent per UNWIND.
const DefaultUpsertBatch = 1000

type neo4jCitationRepo struct {
	driver    driver.DriverInterface
	log       logging.Logger
	batchSize int
}

// NewNeo4jCitationRepo returns the graph-backed citation.GraphRepository.
func NewNeo4jCitationRepo(d driver.DriverInterface, log logging.Logger) citation.GraphRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &neo4jCitationRepo{driver: d, log: log, batchSize: DefaultUpsertBatch}
}

func (r *neo4jCitationRepo) GetBackwardCitationIDs(ctx context.Context, patentID string) ([]string, error) {
	return r.neighbours(ctx, queryBackward, patentID)
}

func (r *neo4jCitationRepo) GetForwardCitationIDs(ctx context.Context, patentID string) ([]string, error) {
	return r.neighbours(ctx, queryForward, patentID)
}

func (r *neo4jCitationRepo) neighbours(ctx context.Context, query, patentID string) ([]string, error) {
	out, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": patentID})
		if err != nil {
			return nil, err
		}
		return driver.CollectStrings(ctx, res, "id")
	})
	if err != nil {
		return nil, err
	}
	ids, _ := out.([]string)
	// self-citations are data errors and never a family signal
	filtered := ids[:0]
	for _, id := range ids {
		if id != patentID {
			filtered = append(filtered, id)
		}
	}
	sort.Strings(filtered)
	return filtered, nil
}

// UpsertCitations merges edges in batches and returns the number of CITES
// relationships created. Self-citations and blank ids are skipped.
func (r *neo4jCitationRepo) UpsertCitations(ctx context.Context, edges []citation.CitationEdge) (int, error) {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e.Citing == "" || e.Cited == "" || e.Citing == e.Cited {
			continue
		}
		rows = append(rows, map[string]any{"citing": e.Citing, "cited": e.Cited})
	}

	created := 0
	for start := 0; start < len(rows); start += r.batchSize {
		end := start + r.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		out, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
			res, err := tx.Run(ctx, queryUpsert, map[string]any{"batch": batch})
			if err != nil {
				return 0, err
			}
			summary, err := res.Consume(ctx)
			if err != nil || summary == nil {
				return 0, err
			}
			return summary.Counters().RelationshipsCreated(), nil
		})
		if err != nil {
			return created, err
		}
		n, _ := out.(int)
		created += n
		r.log.Debug("citation batch upserted", logging.Int("rows", len(batch)), logging.Int("created", n))
	}
	return created, nil
}
