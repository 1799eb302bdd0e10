// Package repositories provides the PostgreSQL-backed reference data and
// exploration repositories.
package repositories

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

const (
	queryPatentDetail = `
		SELECT id, title, assignee, cpc_codes, filing_date, super_sector, sector, sub_sector
		FROM patents WHERE id = $1`

	queryPortfolioMember = `SELECT EXISTS (SELECT 1 FROM portfolio_patents WHERE patent_id = $1)`

	queryAffiliateOwner = `SELECT affiliate_name, parent_name FROM patent_affiliates WHERE patent_id = $1`

	queryFindCompetitor = `
		SELECT c.name, COALESCE(array_agg(a.alias ORDER BY a.alias) FILTER (WHERE a.alias IS NOT NULL), '{}')
		FROM competitors c
		LEFT JOIN competitor_aliases a ON a.competitor_name = c.name
		WHERE c.normalized_name = $1
		   OR c.name IN (SELECT competitor_name FROM competitor_aliases WHERE normalized_alias = $1)
		GROUP BY c.name
		ORDER BY c.name
		LIMIT 1`

	querySectorForCPC = `
		SELECT m.super_sector, m.sector, m.sub_sector
		FROM sector_map m
		WHERE EXISTS (SELECT 1 FROM unnest($1::text[]) AS code WHERE code LIKE m.cpc_prefix || '%')
		ORDER BY length(m.cpc_prefix) DESC, m.cpc_prefix
		LIMIT 1`
)

type postgresPatentRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresPatentRepo returns the reference-data citation.ReferenceRepository.
func NewPostgresPatentRepo(conn *postgres.Connection, log logging.Logger) citation.ReferenceRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresPatentRepo{conn: conn, log: log}
}

func (r *postgresPatentRepo) executor() queryExecutor {
	return r.conn.DB()
}

func (r *postgresPatentRepo) GetPatentDetail(ctx context.Context, patentID string) (*citation.PatentDetail, error) {
	row := r.executor().QueryRowContext(ctx, queryPatentDetail, patentID)
	d, err := scanPatentDetail(row)
	if err != nil {
		if noRows(err) {
			return nil, errors.Newf(errors.ErrCodePatentNotFound, "patent %s not found", patentID)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load patent detail")
	}
	return d, nil
}

func scanPatentDetail(row scanner) (*citation.PatentDetail, error) {
	var (
		d                  citation.PatentDetail
		codes              []string
		filing             sql.NullTime
		superS, sect, subS sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Title, &d.Assignee, pq.Array(&codes), &filing, &superS, &sect, &subS); err != nil {
		return nil, err
	}
	d.CPCCodes = codes
	if filing.Valid {
		t := filing.Time.UTC()
		d.FilingDate = &t
	}
	ref := citation.SectorRef{SuperSector: superS.String, Sector: sect.String, SubSector: subS.String}
	if !ref.IsZero() {
		d.Sector = &ref
	}
	return &d, nil
}

func (r *postgresPatentRepo) IsPortfolioMember(ctx context.Context, patentID string) (bool, error) {
	var ok bool
	if err := r.executor().QueryRowContext(ctx, queryPortfolioMember, patentID).Scan(&ok); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to check portfolio membership")
	}
	return ok, nil
}

func (r *postgresPatentRepo) GetAffiliateOwner(ctx context.Context, patentID string) (*citation.Affiliate, error) {
	var (
		a      citation.Affiliate
		parent sql.NullString
	)
	err := r.executor().QueryRowContext(ctx, queryAffiliateOwner, patentID).Scan(&a.Name, &parent)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load affiliate owner")
	}
	a.Parent = parent.String
	return &a, nil
}

func (r *postgresPatentRepo) FindCompetitor(ctx context.Context, normalizedName string) (*citation.Competitor, error) {
	if normalizedName == "" {
		return nil, nil
	}
	var c citation.Competitor
	err := r.executor().QueryRowContext(ctx, queryFindCompetitor, normalizedName).Scan(&c.Name, pq.Array(&c.Aliases))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to match competitor")
	}
	return &c, nil
}

func (r *postgresPatentRepo) SectorForCPC(ctx context.Context, cpcCodes []string) (*citation.SectorRef, error) {
	codes := normalizeCPC(cpcCodes)
	if len(codes) == 0 {
		return nil, nil
	}
	var ref citation.SectorRef
	err := r.executor().QueryRowContext(ctx, querySectorForCPC, pq.Array(codes)).
		Scan(&ref.SuperSector, &ref.Sector, &ref.SubSector)
	if noRows(err) {
		r.log.Debug("no sector mapping", logging.Strings("cpc_codes", codes))
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to map cpc codes to sector")
	}
	return &ref, nil
}

// normalizeCPC upper-cases and strips whitespace so "h01l 21/02" matches the
// "H01L21" prefix.
func normalizeCPC(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.Join(strings.Fields(c), ""))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
