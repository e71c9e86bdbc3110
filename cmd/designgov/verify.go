package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/designgov/internal/grants"
	"github.com/fyrsmithlabs/designgov/internal/plan"
	"github.com/fyrsmithlabs/designgov/internal/session"
)

var (
	verifyPlanPath   string
	verifyGrantsPath string
	verifyAgent      string
	verifyApproved   bool
	verifyJSON       bool
)

// verifyCmd checks a plan file offline
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a plan file against the constitution without executing it",
	Long: `Classify every action of a plan file and run the full constitution
over it. Exits 1 when a blocking rule is broken or a tool is unknown.

Scope is only checked when --grants is given.

Examples:
  designgov verify --plan plan.yaml
  designgov verify --plan plan.yaml --grants grants.yaml --agent architect
  designgov verify --plan plan.yaml --approved --json`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyPlanPath, "plan", "", "plan file (required)")
	verifyCmd.Flags().StringVar(&verifyGrantsPath, "grants", "", "grants file used for scope checks")
	verifyCmd.Flags().StringVar(&verifyAgent, "agent", "", "agent whose grant applies")
	verifyCmd.Flags().BoolVar(&verifyApproved, "approved", false, "check as if human approval had been granted")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the report as JSON")
	_ = verifyCmd.MarkFlagRequired("plan")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	p, err := plan.Load(verifyPlanPath)
	if err != nil {
		return err
	}

	var grant *session.Grant
	if verifyGrantsPath != "" {
		if verifyAgent == "" {
			return errors.New("--agent is required with --grants")
		}
		reg, err := grants.Load(verifyGrantsPath)
		if err != nil {
			return err
		}
		if grant, err = reg.Get(verifyAgent); err != nil {
			return err
		}
	} else {
		// Without a grants file every operation is in scope.
		grant = session.NewGrant()
		for _, kind := range []session.OperationKind{
			session.OperationRead, session.OperationCreate, session.OperationModify,
			session.OperationDelete, session.OperationExport, session.OperationValidate,
		} {
			grant.Allow(kind, session.Scope{})
		}
	}

	report, err := plan.Verify(p, verifyAgent, grant, verifyApproved)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if verifyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "plan %s: %d actions, hash %s\n", verifyPlanPath, len(p.Actions), report.Hash)
		for _, tool := range report.UnknownTools {
			fmt.Fprintf(out, "  unknown tool %s\n", tool)
		}
		for _, v := range report.Violations {
			fmt.Fprintf(out, "  [%s] %s: %s\n", v.Severity, v.Rule, v.Detail)
		}
		if report.OK() {
			fmt.Fprintln(out, "ok")
		}
	}

	if !report.OK() {
		return &exitError{code: 1, msg: "plan has blocking violations"}
	}
	return nil
}
