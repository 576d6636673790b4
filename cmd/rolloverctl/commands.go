package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	jwttoken "trustrails/internal/jwt_token"
	"trustrails/internal/rollover/app"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation"
	id "trustrails/pkg/domain"
)

func transferArg(args []string) (id.TransferID, error) {
	return id.ParseTransferID(args[0])
}

func newStateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state <transfer-id>",
		Short: "Derive the canonical state of a transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transferID, err := transferArg(args)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				cs, err := a.Service.State(ctx, transferID)
				if err != nil {
					return err
				}
				return opts.print(cmd, cs)
			})
		},
	}
}

func newViewCommand(opts *rootOptions) *cobra.Command {
	var custodian string
	cmd := &cobra.Command{
		Use:   "view <transfer-id>",
		Short: "Show a transfer as one custodian sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transferID, err := transferArg(args)
			if err != nil {
				return err
			}
			custodianID, err := id.ParseCustodianID(custodian)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				view, err := a.Service.View(ctx, transferID, custodianID)
				if err != nil {
					return err
				}
				return opts.print(cmd, view)
			})
		},
	}
	cmd.Flags().StringVar(&custodian, "custodian", "", "viewing custodian (required)")
	_ = cmd.MarkFlagRequired("custodian")
	return cmd
}

func newEventsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events <transfer-id>",
		Short: "List the events of a transfer in fold order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transferID, err := transferArg(args)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				events, err := a.Service.Events(ctx, transferID)
				if err != nil {
					return err
				}
				return opts.print(cmd, events)
			})
		},
	}
}

func newSubmissionsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submissions <transfer-id>",
		Short: "List the contract submission attempts of a transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transferID, err := transferArg(args)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				subs, err := a.Service.Submissions(ctx, transferID)
				if err != nil {
					return err
				}
				if subs == nil {
					return opts.print(cmd, []struct{}{})
				}
				return opts.print(cmd, subs)
			})
		},
	}
}

type reconcileResult struct {
	TransferID id.TransferID               `json:"transferId"`
	Status     reconciliation.Status       `json:"status,omitempty"`
	Scenario   reconciliation.ScenarioKind `json:"scenario,omitempty"`
	TxHash     string                      `json:"txHash,omitempty"`
	Appended   []models.EventType          `json:"appended,omitempty"`
	Error      string                      `json:"error,omitempty"`
	ErrorClass string                      `json:"errorClass,omitempty"`
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var (
		all         bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "reconcile [transfer-id...]",
		Short: "Run a reconciliation pass for transfers",
		Long: `Runs one reconciliation pass per transfer and prints the outcome of each.
Exits 1 when any pass failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("pass transfer ids or --all")
			}
			var transfers []id.TransferID
			for _, arg := range args {
				t, err := id.ParseTransferID(arg)
				if err != nil {
					return err
				}
				transfers = append(transfers, t)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if all {
					var err error
					if transfers, err = a.Transfers(ctx); err != nil {
						return err
					}
				}
				results := reconcileAll(ctx, a, transfers, concurrency)
				if err := opts.print(cmd, results); err != nil {
					return err
				}
				failed := 0
				for _, r := range results {
					if r.Error != "" {
						failed++
					}
				}
				if failed > 0 {
					return &exitError{code: exitFailure, err: fmt.Errorf("%d of %d reconciliation passes failed", failed, len(results))}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reconcile every transfer in the event log")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "transfers reconciled in parallel")
	return cmd
}

func reconcileAll(ctx context.Context, a *app.App, transfers []id.TransferID, concurrency int) []reconcileResult {
	results := make([]reconcileResult, len(transfers))
	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, transferID := range transfers {
		g.Go(func() error {
			r := reconcileResult{TransferID: transferID}
			out, err := a.Service.Reconcile(ctx, transferID)
			if err != nil {
				r.Error = err.Error()
				if ce, ok := reconciliation.AsClassified(err); ok {
					r.ErrorClass = string(ce.Class)
				}
			} else {
				r.Status = out.Status
				r.Scenario = out.Scenario
				r.TxHash = out.TxHash
				for _, e := range out.Appended {
					r.Appended = append(r.Appended, e.Type)
				}
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		custodian string
		actor     string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			custodianID, err := id.ParseCustodianID(custodian)
			if err != nil {
				return err
			}
			svc := jwttoken.NewJWTService(opts.cfg.Server.JWTSigningKey, opts.cfg.Server.JWTIssuer)
			token, err := svc.IssueToken(custodianID, id.ActorID(actor), ttl)
			if err != nil {
				return err
			}
			return opts.print(cmd, map[string]any{
				"accessToken": token,
				"tokenType":   "Bearer",
				"expiresIn":   int(ttl.Seconds()),
			})
		},
	}
	cmd.Flags().StringVar(&custodian, "custodian", "", "custodian the token acts for (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "acting user, defaults to the custodian")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("custodian")
	return cmd
}
