package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

const flagExpectGeneration = "expect-generation"

// expectedGeneration returns the optimistic-concurrency guard when the flag
// was given.
func expectedGeneration(cmd *cobra.Command, v int) *int {
	if !cmd.Flags().Changed(flagExpectGeneration) {
		return nil
	}
	return &v
}

func validDirection(d string) error {
	switch d {
	case "backward", "forward", "both":
		return nil
	}
	return errors.Newf(errors.ErrCodeBadRequest, "invalid direction %q (backward, forward, both)", d)
}

func newCreateCmd() *cobra.Command {
	var (
		id      string
		name    string
		seeds   []string
		scoring scoringFlags
	)

	cmd := &cobra.Command{
		Use:   "create [SEED...]",
		Short: "Create an exploration from seed patents",
		Long: "Create an exploration from one or more seed patents. Seeds may be given as\n" +
			"arguments or with --seed. Seed data is fetched and validated server-side.",
		Example: "  explorer create US1234567B2 US7654321B1 --name oled-hosts --preset citation-heavy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			all := append(append([]string{}, seeds...), args...)
			if len(all) == 0 {
				return errors.New(errors.ErrCodeBadRequest, "at least one seed patent is required")
			}
			w, t, err := scoring.resolve(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			resp, err := cc.Client.Explorations().Create(ctx, &types.CreateRequest{
				ID: id, Name: name, SeedIDs: all, Preset: scoring.preset, Weights: w, Thresholds: t,
			})
			if err != nil {
				return err
			}
			return render(cmd, cc, resp, func(out io.Writer) error {
				fmt.Fprintf(out, "%s exploration %s with %d seed(s)\n",
					color.GreenString("created"), resp.Exploration.ID, len(resp.Exploration.SeedIDs))
				writeWarnings(out, resp.Warnings)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "client-chosen exploration id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "seed patent id (repeatable)")
	scoring.register(cmd)
	return cmd
}

func newExpandCmd() *cobra.Command {
	var (
		direction     string
		maxCandidates int
		expectGen     int
		scoring       scoringFlags
	)

	cmd := &cobra.Command{
		Use:   "expand ID",
		Short: "Run one citation expansion step",
		Long: "Expand the frontier of an exploration along backward citations, forward\n" +
			"citations or both. Weights given here apply to every existing candidate first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := validDirection(direction); err != nil {
				return err
			}
			w, t, err := scoring.resolve(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			res, err := cc.Client.Explorations().Expand(ctx, args[0], &types.ExpandRequest{
				Direction:          direction,
				Preset:             scoring.preset,
				Weights:            w,
				Thresholds:         t,
				MaxCandidates:      maxCandidates,
				ExpectedGeneration: expectedGeneration(cmd, expectGen),
			})
			if err != nil {
				return err
			}
			return render(cmd, cc, res, func(out io.Writer) error { return writeResult(out, res) })
		},
	}

	cmd.Flags().StringVarP(&direction, "direction", "d", "both", "backward, forward or both")
	cmd.Flags().IntVar(&maxCandidates, "max-candidates", 0, "candidate cap for this step (server default when 0)")
	cmd.Flags().IntVar(&expectGen, flagExpectGeneration, 0, "fail unless the exploration is at this generation")
	scoring.register(cmd)
	return cmd
}

func newSiblingsCmd() *cobra.Command {
	var (
		direction     string
		maxCandidates int
		expectGen     int
	)

	cmd := &cobra.Command{
		Use:   "siblings ID",
		Short: "Discover co-citing and co-cited siblings of the frontier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := validDirection(direction); err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			res, err := cc.Client.Explorations().Siblings(ctx, args[0], &types.SiblingsRequest{
				Direction:          direction,
				MaxCandidates:      maxCandidates,
				ExpectedGeneration: expectedGeneration(cmd, expectGen),
			})
			if err != nil {
				return err
			}
			return render(cmd, cc, res, func(out io.Writer) error { return writeResult(out, res) })
		},
	}

	cmd.Flags().StringVarP(&direction, "direction", "d", "both", "backward, forward or both")
	cmd.Flags().IntVar(&maxCandidates, "max-candidates", 0, "candidate cap for this step (server default when 0)")
	cmd.Flags().IntVar(&expectGen, flagExpectGeneration, 0, "fail unless the exploration is at this generation")
	return cmd
}

func newRescoreCmd() *cobra.Command {
	var (
		expectGen int
		scoring   scoringFlags
	)

	cmd := &cobra.Command{
		Use:   "rescore ID",
		Short: "Reapply weights and thresholds without fetching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			w, t, err := scoring.resolve(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			res, err := cc.Client.Explorations().Rescore(ctx, args[0], &types.RescoreRequest{
				Preset:             scoring.preset,
				Weights:            w,
				Thresholds:         t,
				ExpectedGeneration: expectedGeneration(cmd, expectGen),
			})
			if err != nil {
				return err
			}
			return render(cmd, cc, res, func(out io.Writer) error { return writeResult(out, res) })
		},
	}

	cmd.Flags().IntVar(&expectGen, flagExpectGeneration, 0, "fail unless the exploration is at this generation")
	scoring.register(cmd)
	return cmd
}

// parseStatusArgs turns PATENT=STATUS pairs into status changes.
func parseStatusArgs(pairs []string) ([]types.StatusChange, error) {
	changes := make([]types.StatusChange, 0, len(pairs))
	for _, p := range pairs {
		id, status, ok := strings.Cut(p, "=")
		id, status = strings.TrimSpace(id), strings.ToLower(strings.TrimSpace(status))
		if !ok || id == "" || status == "" {
			return nil, errors.Newf(errors.ErrCodeBadRequest, "expected PATENT=STATUS, got %q", p)
		}
		switch status {
		case "member", "excluded", "neutral", "none":
		default:
			return nil, errors.Newf(errors.ErrCodeBadRequest, "invalid status %q for %s (member, excluded, neutral, none)", status, id)
		}
		changes = append(changes, types.StatusChange{PatentID: id, Status: status})
	}
	return changes, nil
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status ID PATENT=STATUS...",
		Short: "Override candidate status",
		Long: "Force candidates to member, excluded or neutral, or clear the override with\n" +
			"none. All changes apply atomically.",
		Example: "  explorer status exp-1 US1111111B2=member US2222222A1=excluded",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			changes, err := parseStatusArgs(args[1:])
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			exp, err := cc.Client.Explorations().SetStatus(ctx, args[0], changes...)
			if err != nil {
				return err
			}
			return render(cmd, cc, exp, func(out io.Writer) error {
				fmt.Fprintf(out, "%s %d override(s) on %s, %d member(s), frontier %d\n",
					color.GreenString("applied"), len(changes), exp.ID, len(exp.Members), len(exp.Frontier))
				return nil
			})
		},
	}
	return cmd
}

func newShowCmd() *cobra.Command {
	var (
		zone   string
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show an exploration with its candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			exp, err := cc.Client.Explorations().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return render(cmd, cc, exp, func(out io.Writer) error {
				cands := filterCandidates(append([]types.Candidate(nil), exp.Candidates...), zone, status)
				sortCandidates(cands)
				if limit > 0 && len(cands) > limit {
					cands = cands[:limit]
				}
				return writeExploration(out, exp, cands)
			})
		},
	}

	cmd.Flags().StringVar(&zone, "zone", "", "only candidates in this zone (member, expansion, rejected)")
	cmd.Flags().StringVar(&status, "status", "", "only candidates with this status (member, candidate, excluded)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum candidates in the table (0 for all)")
	return cmd
}

func newListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List explorations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			page, err := cc.Client.Explorations().List(ctx, limit, offset)
			if err != nil {
				return err
			}
			return render(cmd, cc, page, func(out io.Writer) error {
				rows := make([][]string, 0, len(page.Items))
				for _, s := range page.Items {
					state := "active"
					if s.Archived {
						state = color.HiBlackString("archived")
					}
					rows = append(rows, []string{
						s.ID,
						truncateString(s.Name, 30),
						fmt.Sprintf("%d", s.SeedCount),
						fmt.Sprintf("%d", s.CandidateCount),
						fmt.Sprintf("%d", s.CurrentGeneration),
						state,
						s.UpdatedAt.Format("2006-01-02 15:04"),
					})
				}
				if err := writeTable(out, []string{"ID", "Name", "Seeds", "Candidates", "Gen", "State", "Updated"}, rows); err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%d of %d exploration(s)\n", len(page.Items), page.Total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "page size (1..100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the named weight presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			resp, err := cc.Client.Explorations().Presets(ctx)
			if err != nil {
				return err
			}
			return render(cmd, cc, resp, func(out io.Writer) error {
				rows := make([][]string, 0, len(resp.Presets))
				for _, p := range resp.Presets {
					name := p.Name
					if p.Default {
						name += " (default)"
					}
					w := p.Weights
					rows = append(rows, []string{
						name,
						formatWeight(w.Taxonomic), formatWeight(w.CommonPriorArt), formatWeight(w.CommonForward),
						formatWeight(w.CompetitorOverlap), formatWeight(w.PortfolioAffiliate),
						formatWeight(w.CitationSectorAlignment), formatWeight(w.MultiPath),
						formatWeight(w.Assignee), formatWeight(w.Temporal), formatWeight(w.DepthDecay),
					})
				}
				return writeTable(out, []string{"Preset", "Tax", "Prior", "Fwd", "Comp", "Portf", "Sector", "Paths", "Assignee", "Time", "Decay"}, rows)
			})
		},
	}
}

func formatWeight(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func newRebuildCmd() *cobra.Command {
	var expectGen int

	cmd := &cobra.Command{
		Use:   "rebuild ID",
		Short: "Rebuild the seed aggregate from the seeds and current members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			resp, err := cc.Client.Explorations().Rebuild(ctx, args[0], expectedGeneration(cmd, expectGen))
			if err != nil {
				return err
			}
			return render(cmd, cc, resp, func(out io.Writer) error {
				fmt.Fprintf(out, "%s aggregate of %s from %d contributor(s), version %d\n",
					color.GreenString("rebuilt"), resp.ExplorationID, resp.Contributors, resp.Version)
				writeWarnings(out, resp.Warnings)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&expectGen, flagExpectGeneration, 0, "fail unless the exploration is at this generation")
	return cmd
}

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive ID",
		Short: "Snapshot an exploration to object storage and make it read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, cc)
			defer cancel()
			resp, err := cc.Client.Explorations().Archive(ctx, args[0])
			if err != nil {
				return err
			}
			return render(cmd, cc, resp, func(out io.Writer) error {
				fmt.Fprintf(out, "%s %s to %s\n", color.GreenString("archived"), resp.ExplorationID, resp.Key)
				return nil
			})
		},
	}
}
