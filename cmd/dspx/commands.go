package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wolfbed/dspx/internal/oplog"
	"github.com/wolfbed/dspx/internal/pattern"
	"github.com/wolfbed/dspx/internal/report"
	"github.com/wolfbed/dspx/internal/session"
	"github.com/wolfbed/dspx/internal/ui"
	"github.com/wolfbed/dspx/pkg/utils"
)

var (
	outputFmt      string
	primaryDevice  string
	workers        int
	memoryBudget   string
	noProgress     bool
	applyResiduals bool
	applyDupes     bool
	applyEmpty     bool
	applyYes       bool
	dryRun         bool
)

func init() {
	scanCmd.Flags().StringVar(&primaryDevice, "primary", "", "device id whose copies are preferred for keeping")
	scanCmd.Flags().IntVar(&workers, "workers", 0, "hashing worker count (0 = auto)")
	scanCmd.Flags().StringVar(&memoryBudget, "memory", "", "read buffer memory ceiling, e.g. 16MB")
	scanCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress display")
	scanCmd.Flags().StringVarP(&outputFmt, "output", "o", "summary", "output format: summary, table, json")

	reportCmd.Flags().StringVarP(&outputFmt, "output", "o", "table", "output format: summary, table, json")

	applyCmd.Flags().BoolVar(&applyResiduals, "residuals", false, "include residual files in the plan")
	applyCmd.Flags().BoolVar(&applyDupes, "duplicates", false, "include non-keep duplicate copies in the plan")
	applyCmd.Flags().BoolVar(&applyEmpty, "empty-dirs", false, "include empty directories in the plan")
	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "apply the full plan without interactive approval")
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log actions without deleting anything")

	rootCmd.AddCommand(scanCmd, resumeCmd, reportCmd, applyCmd, sessionsCmd, patternsCmd, configCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var scanCmd = &cobra.Command{
	Use:   "scan [roots...]",
	Short: "Scan roots for residual files, duplicates, and empty directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if primaryDevice != "" {
			cfg.PrimaryDevice = primaryDevice
		}
		if workers > 0 {
			cfg.Workers = workers
		}
		if memoryBudget != "" {
			cfg.MemoryBudget = memoryBudget
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}

		s, err := session.New(cfg, args)
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "session %s\n", s.ID)
		return runPipeline(cmd, s)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume an interrupted session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}

		s, err := session.Resume(cfg, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		return runPipeline(cmd, s)
	},
}

func runPipeline(cmd *cobra.Command, s *session.Session) error {
	ctx, cancel := signalContext()
	defer cancel()

	stopProgress := func() {}
	if !noProgress && ui.IsTTY(os.Stdout) {
		done := make(chan struct{})
		prog := tea.NewProgram(ui.NewProgress(s.Events()))
		go func() {
			defer close(done)
			_, _ = prog.Run()
		}()
		stopProgress = func() {
			prog.Quit()
			<-done
		}
	}

	summary, err := s.Run(ctx)
	stopProgress()
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled; resume with: dspx resume %s\n", s.ID)
			return nil
		}
		return err
	}

	return renderResults(cmd, s, summary, report.Format(outputFmt))
}

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Show a completed session's findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}

		s, err := session.Resume(cfg, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		summary, err := s.Summarize()
		if err != nil {
			return err
		}
		return renderResults(cmd, s, summary, report.Format(outputFmt))
	},
}

func renderResults(cmd *cobra.Command, s *session.Session, summary *session.Summary, format report.Format) error {
	groups, err := s.Groups()
	if err != nil {
		return err
	}
	residuals, err := s.ResidualMatches()
	if err != nil {
		return err
	}
	empties, err := s.EmptyDirCandidates()
	if err != nil {
		return err
	}

	r := report.New(cmd.OutOrStdout(), format)
	return r.Report(&report.Results{
		SessionID: s.ID,
		Summary:   summary,
		Groups:    groups,
		Residuals: residuals,
		EmptyDirs: empties,
	})
}

var applyCmd = &cobra.Command{
	Use:   "apply <session-id>",
	Short: "Apply approved deletions for a session",
	Long: `Builds a deletion plan from the session's findings and applies it. Without
--yes the plan is shown for interactive approval first. Re-running after a
partial failure skips actions already completed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if dryRun {
			cfg.DryRun = true
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}

		if !applyResiduals && !applyDupes && !applyEmpty {
			return fmt.Errorf("nothing selected: pass --residuals, --duplicates, and/or --empty-dirs")
		}

		s, err := session.Resume(cfg, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		candidates, err := buildPlan(s)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to do")
			return nil
		}

		var actions []oplog.Action
		if applyYes || !ui.IsTTY(os.Stdout) {
			for _, c := range candidates {
				actions = append(actions, c.Action)
			}
		} else {
			model := ui.NewApprove(fmt.Sprintf("Approve deletions for session %s", s.ID), candidates)
			final, err := tea.NewProgram(model).Run()
			if err != nil {
				return err
			}
			actions = final.(ui.ApproveModel).Approved()
			if actions == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "cancelled, nothing deleted")
				return nil
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, err := s.Execute(ctx, actions)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "completed %d, skipped %d, failed %d, freed %s\n",
			result.Completed, result.Skipped, result.Failed, utils.FormatBytes(result.Bytes))
		return nil
	},
}

// buildPlan collects approval candidates: duplicates first (non-keep copies
// only), then residuals, then empty directories so file deletions precede
// the directory pass.
func buildPlan(s *session.Session) ([]ui.Candidate, error) {
	var candidates []ui.Candidate

	if applyDupes {
		groups, err := s.Groups()
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			for _, m := range g.Members[1:] {
				candidates = append(candidates, ui.Candidate{
					Action:   oplog.Action{Kind: oplog.KindDeleteFile, Target: m.Path},
					Label:    fmt.Sprintf("%s (duplicate of %s)", m.Path, g.Members[0].Path),
					Selected: true,
				})
			}
		}
	}

	if applyResiduals {
		residuals, err := s.ResidualMatches()
		if err != nil {
			return nil, err
		}
		for _, m := range residuals {
			kind := oplog.KindDeleteFile
			if m.IsDir {
				kind = oplog.KindRemoveDir
			}
			candidates = append(candidates, ui.Candidate{
				Action:   oplog.Action{Kind: kind, Target: m.Path},
				Label:    fmt.Sprintf("%s (residual: %v)", m.Path, m.Patterns),
				Selected: true,
			})
		}
	}

	if applyEmpty {
		empties, err := s.EmptyDirCandidates()
		if err != nil {
			return nil, err
		}
		for _, d := range empties {
			candidates = append(candidates, ui.Candidate{
				Action:   oplog.Action{Kind: oplog.KindRemoveDir, Target: d},
				Label:    fmt.Sprintf("%s (empty directory)", d),
				Selected: true,
			})
		}
	}

	return candidates, nil
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		infos, err := session.List(cfg.SessionRoot)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
			return nil
		}
		for _, info := range infos {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.ID, info.Created.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return session.Remove(cfg.SessionRoot, args[0])
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List and validate the residual pattern set",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := pattern.EnsureExists(cfg.PatternsPath); err != nil {
			return err
		}
		patterns, err := pattern.Load(cfg.PatternsPath)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d patterns from %s\n", len(patterns), cfg.PatternsPath)
		for _, p := range patterns {
			state := "enabled"
			if !p.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %-16s %-6s %-20s %s (%s)\n", p.ID, p.Kind, p.Expression, p.Description, state)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
