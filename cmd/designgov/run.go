package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/constitution"
	"github.com/fyrsmithlabs/designgov/internal/governance"
	"github.com/fyrsmithlabs/designgov/internal/grants"
	"github.com/fyrsmithlabs/designgov/internal/mcpexec"
	"github.com/fyrsmithlabs/designgov/internal/orchestrator"
	"github.com/fyrsmithlabs/designgov/internal/plan"
	"github.com/fyrsmithlabs/designgov/internal/ratelimit"
	"github.com/fyrsmithlabs/designgov/internal/session"
)

var (
	runPlanPath    string
	runAgent       string
	runGrantsPath  string
	runApprove     bool
	runApprover    string
	runCallTimeout time.Duration
)

// runCmd drives one session against the configured tool servers
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a plan through the governed session lifecycle",
	Long: `Load a plan file, dry-run every action on the configured MCP tool
servers, validate, and commit when the session is allowed to.

A session that escalates waiting for approval is resumed once with
approval granted when --approve is set.

Exit codes: 0 completed, 1 failed, 2 escalated.

Examples:
  designgov run --plan plan.yaml --agent architect
  designgov run --plan demolish.yaml --agent architect --approve --approver alice`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPlanPath, "plan", "", "plan file (required)")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "agent id the session runs as (required)")
	runCmd.Flags().StringVar(&runGrantsPath, "grants", "", "grants file (default: grants_file from config)")
	runCmd.Flags().BoolVar(&runApprove, "approve", false, "grant approval and resume when the session waits for it")
	runCmd.Flags().StringVar(&runApprover, "approver", "cli", "name recorded as the approver")
	runCmd.Flags().DurationVar(&runCallTimeout, "call-timeout", 30*time.Second, "timeout for one tool call")
	_ = runCmd.MarkFlagRequired("plan")
	_ = runCmd.MarkFlagRequired("agent")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := plan.Load(runPlanPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{withSinks: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			a.logger.Warn(context.Background(), "shutdown error", zap.Error(err))
		}
	}()

	reg, err := a.loadGrants(runGrantsPath)
	if err != nil {
		return err
	}
	grant, err := reg.Get(runAgent)
	if err != nil {
		if !errors.Is(err, grants.ErrNoGrant) {
			return err
		}
		// Governance denies everything for agents without a grant.
		a.logger.Warn(ctx, "agent has no grant", zap.String("agent_id", runAgent))
	}

	orch, closeExec, err := buildOrchestrator(ctx, a)
	if err != nil {
		return err
	}
	defer closeExec()

	stderr := cmd.ErrOrStderr()
	orch.OnProgress(func(pp orchestrator.PhaseProgress) {
		fmt.Fprintf(stderr, "%s: %s -> %s\n", pp.SessionID, pp.From, pp.To)
	})

	st, err := orch.Run(ctx, p.Session(runAgent, grant))
	fmt.Fprintln(cmd.OutOrStdout(), orchestrator.Summary(st))
	if err != nil {
		return err
	}

	if st.Phase == session.PhaseEscalated && st.ApprovalRequired && runApprove {
		st.GrantApproval(runApprover)
		resumed, err := orch.Resume(ctx, st)
		if resumed != nil {
			fmt.Fprintln(cmd.OutOrStdout(), orchestrator.Summary(resumed))
		}
		if err != nil {
			return err
		}
		st = resumed
	}

	return exitFor(st)
}

func buildOrchestrator(ctx context.Context, a *app) (*orchestrator.Orchestrator, func(), error) {
	limiter, err := ratelimit.New(ratelimit.Config{
		Window: a.cfg.RateLimit.Window.Duration(),
		MaxOps: a.cfg.RateLimit.MaxOps,
	}, ratelimit.SystemClock())
	if err != nil {
		return nil, nil, err
	}

	gov := governance.New(a.store, limiter,
		governance.WithBulkThreshold(a.cfg.Governance.BulkThreshold),
		governance.WithLogger(a.logger),
		governance.WithMetrics(governance.NewMetrics()))

	if len(a.cfg.MCP.Servers) == 0 {
		a.logger.Warn(ctx, "no tool servers configured; every tool call will fail")
	}
	exec, err := mcpexec.Dial(ctx, a.cfg.MCP.Servers,
		&mcpexec.Config{Name: "designgov", Version: version, CallTimeout: runCallTimeout},
		mcpexec.WithLogger(a.logger),
		mcpexec.WithMetrics(mcpexec.NewMetrics(a.telemetry.Meter("github.com/fyrsmithlabs/designgov/internal/mcpexec"), a.logger)))
	if err != nil {
		return nil, nil, err
	}

	orch := orchestrator.New(gov, exec,
		orchestrator.WithEnforcer(constitution.NewEnforcer()),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithTelemetry(a.telemetry))

	closeExec := func() {
		if err := exec.Close(); err != nil {
			a.logger.Warn(ctx, "closing tool sessions", zap.Error(err))
		}
	}
	return orch, closeExec, nil
}

func exitFor(st *session.State) error {
	switch st.Phase {
	case session.PhaseCompleted:
		return nil
	case session.PhaseEscalated:
		return &exitError{code: 2, msg: "session escalated: " + st.EscalationReason}
	default:
		return &exitError{code: 1, msg: "session failed: " + st.FailureReason}
	}
}
