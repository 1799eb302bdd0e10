package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/bootstrap"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/config"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// CitationWriter receives ingested citation edges.
type CitationWriter interface {
	UpsertCitations(ctx context.Context, edges []citation.CitationEdge) (int, error)
}

// Migrator runs schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Force(version int) error
}

// EventSource streams exploration events.
type EventSource interface {
	Run(ctx context.Context, handler kafka.Handler) error
	Close() error
}

// Backends opens the stores used by ingest, migrate and events. Each opener
// returns a close func that is always safe to call.
type Backends struct {
	OpenCitationWriter func(ctx context.Context, cfg *config.Config, log logging.Logger) (CitationWriter, func(), error)
	NewMigrator        func(cfg *config.Config) Migrator
	OpenEventSource    func(cfg *config.Config, group string, fromBeginning bool, log logging.Logger) (EventSource, error)
}

// DefaultBackends connects to Neo4j, PostgreSQL and Kafka from the service config.
func DefaultBackends() Backends {
	return Backends{
		OpenCitationWriter: openNeo4jCitationWriter,
		NewMigrator: func(cfg *config.Config) Migrator {
			return pgMigrator{url: cfg.Database.URL(), path: cfg.Database.MigrationPath}
		},
		OpenEventSource: openKafkaEventSource,
	}
}

func openNeo4jCitationWriter(ctx context.Context, cfg *config.Config, log logging.Logger) (CitationWriter, func(), error) {
	d, err := neo4j.NewDriver(bootstrap.Neo4jConfig(cfg), log)
	if err != nil {
		return nil, func() {}, err
	}
	return repositories.NewNeo4jCitationRepo(d, log), func() { _ = d.Close(context.Background()) }, nil
}

func openKafkaEventSource(cfg *config.Config, group string, fromBeginning bool, log logging.Logger) (EventSource, error) {
	start := kafkago.LastOffset
	if fromBeginning {
		start = kafkago.FirstOffset
	}
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     group,
		StartOffset: start,
	}, log)
}

type pgMigrator struct{ url, path string }

func (m pgMigrator) Up() error            { return postgres.RunMigrations(m.url, m.path) }
func (m pgMigrator) Down(steps int) error { return postgres.RollbackMigration(m.url, m.path, steps) }
func (m pgMigrator) Force(v int) error    { return postgres.ForceMigrationVersion(m.url, m.path, v) }
func (m pgMigrator) Status() (uint, bool, error) {
	return postgres.MigrationStatus(m.url, m.path)
}

// ─────────────────────────────────────────────────────────────────────────────
// ingest
// ─────────────────────────────────────────────────────────────────────────────

// readCitationCSV parses citing,cited rows. A header row is skipped, blank
// and self-citing rows are dropped.
func readCitationCSV(r io.Reader) ([]citation.CitationEdge, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var (
		edges   []citation.CitationEdge
		skipped int
		line    int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed citation csv")
		}
		line++
		if len(rec) < 2 {
			return nil, 0, errors.Newf(errors.ErrCodeBadRequest, "row %d: expected citing,cited", line)
		}
		citing, cited := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if line == 1 && strings.EqualFold(citing, "citing") && strings.EqualFold(cited, "cited") {
			continue
		}
		if citing == "" || cited == "" || citing == cited {
			skipped++
			continue
		}
		edges = append(edges, citation.CitationEdge{Citing: citing, Cited: cited})
	}
	return edges, skipped, nil
}

func newIngestCmd() *cobra.Command {
	var (
		batchSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Load citation edges from a citing,cited CSV into the graph",
		Long: "Load citation edges into the citation graph. FILE is a CSV with the columns\n" +
			"citing,cited and an optional header; use - for stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if batchSize < 1 {
				return errors.New(errors.ErrCodeBadRequest, "--batch-size must be positive")
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			edges, skipped, err := readCitationCSV(in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%d edge(s) parsed, %d skipped (dry run)\n", len(edges), skipped)
				return nil
			}

			cfg, err := cc.Config()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			writer, closeWriter, err := cc.backends.OpenCitationWriter(ctx, cfg, cc.Logger)
			if err != nil {
				return err
			}
			defer closeWriter()

			created := 0
			for start := 0; start < len(edges); start += batchSize {
				end := start + batchSize
				if end > len(edges) {
					end = len(edges)
				}
				n, err := writer.UpsertCitations(ctx, edges[start:end])
				created += n
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeDatabaseError,
						fmt.Sprintf("ingest stopped after %d of %d edge(s)", start, len(edges)))
				}
				cc.Logger.Debug("ingest batch written", logging.Int("offset", start), logging.Int("created", n))
			}
			fmt.Fprintf(out, "%s %d edge(s), %d new, %d skipped\n",
				color.GreenString("ingested"), len(edges), created, skipped)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 5000, "edges per write")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse only, do not write")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// migrate
// ─────────────────────────────────────────────────────────────────────────────

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	withMigrator := func(run func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg, err := cc.Config()
			if err != nil {
				return err
			}
			return run(cmd, cc.backends.NewMigrator(cfg), args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "down [STEPS]",
			Short: "Roll back migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return errors.Newf(errors.ErrCodeBadRequest, "invalid step count %q", args[0])
					}
					steps = n
				}
				if err := m.Down(steps); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
				return printMigrationStatus(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without migrating, to clear a dirty state",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return errors.Newf(errors.ErrCodeBadRequest, "invalid version %q", args[0])
				}
				if err := m.Force(v); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			}),
		},
	)
	return cmd
}

func printMigrationStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Status()
	if err != nil {
		return err
	}
	state := color.GreenString("clean")
	if dirty {
		state = color.RedString("dirty")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, state)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// events
// ─────────────────────────────────────────────────────────────────────────────

func newEventsCmd() *cobra.Command {
	var (
		group         string
		fromBeginning bool
		exploration   string
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail exploration events from the event topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg, err := cc.Config()
			if err != nil {
				return err
			}
			src, err := cc.backends.OpenEventSource(cfg, group, fromBeginning, cc.Logger)
			if err != nil {
				return err
			}
			defer src.Close()

			// events runs until interrupted or --limit is reached, not under --timeout
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			seen := 0
			return src.Run(ctx, func(_ context.Context, env *kafka.EventEnvelope) error {
				if exploration != "" && env.Metadata["exploration_id"] != exploration {
					return nil
				}
				if err := writeEvent(out, cc.OutputFormat, env); err != nil {
					return err
				}
				seen++
				if limit > 0 && seen >= limit {
					cancel()
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&group, "group", "explorer-cli", "consumer group id")
	cmd.Flags().BoolVar(&fromBeginning, "from-beginning", false, "start at the oldest retained event for a new group")
	cmd.Flags().StringVar(&exploration, "exploration", "", "only events of this exploration")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many events (0 runs until interrupted)")
	return cmd
}

func writeEvent(w io.Writer, format string, env *kafka.EventEnvelope) error {
	switch format {
	case "json":
		return printJSON(w, env)
	case "yaml":
		if err := printYAML(w, env); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, "---")
		return err
	}
	_, err := fmt.Fprintf(w, "%s  %-28s %s\n",
		env.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		color.CyanString(env.EventType),
		env.Metadata["exploration_id"])
	return err
}
