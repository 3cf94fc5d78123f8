package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlexZinkM/fident/internal/config"
	"github.com/AlexZinkM/fident/internal/model"
	"github.com/AlexZinkM/fident/internal/onboarding"

	"github.com/spf13/cobra"
)

// withResolved runs fn after the machine has reconciled local and remote state.
func withResolved(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.machine.Resolve(ctx); err != nil {
			return err
		}
		return fn(ctx, a)
	}
}

func printState(m *onboarding.Machine) {
	fmt.Println("State:", m.State())
	if id, ok := m.Identity(); ok {
		fmt.Println("Address:", id.Address)
		fmt.Println("Public key:", id.PublicKey)
	}
	if m.SyncPending() {
		fmt.Println("Remote record: not saved yet (run `fident status` again to retry)")
	}
	if r := m.Receipt(); r != nil {
		fmt.Printf("Binding: %s (slot %d)\n", r.TransactionHash, r.LedgerIndex)
	}
	if err := m.LastError(); err != nil {
		fmt.Printf("Last error: %s (%s)\n", err, model.Code(err))
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Reconcile and show the wallet state",
		RunE: withResolved(func(ctx context.Context, a *app) error {
			if a.machine.State() == onboarding.Ready && a.machine.SyncPending() {
				if _, err := a.machine.Sync(ctx); err != nil {
					fmt.Fprintln(os.Stderr, "Sync failed:", err)
				}
			}
			printState(a.machine)
			if id, ok := a.machine.Identity(); ok {
				if bal, err := a.ledger.Balance(ctx, id.Address); err == nil {
					fmt.Println("Balance:", bal.SOL, "SOL")
				}
			}
			return nil
		}),
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet and show its recovery phrase once",
		RunE: withResolved(func(ctx context.Context, a *app) error {
			if _, err := a.machine.Create(ctx); err != nil {
				return err
			}
			if a.machine.State() == onboarding.Ready {
				// a pending identity was saved instead of generating a new one
				printState(a.machine)
				return nil
			}

			seed, err := a.machine.Secret()
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Write down your recovery phrase. It will not be shown again:")
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, "  "+seed)
			fmt.Fprintln(os.Stderr)
			fmt.Fprint(os.Stderr, "Press Enter once it is recorded...")
			bufio.NewReader(os.Stdin).ReadString('\n')

			if _, err := a.machine.Acknowledge(ctx); err != nil {
				return err
			}
			printState(a.machine)
			return nil
		}),
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the registered wallet from its recovery phrase",
		RunE: withResolved(func(ctx context.Context, a *app) error {
			if a.machine.State() != onboarding.NeedsRestore {
				return fmt.Errorf("%w: nothing to restore in state %s", model.ErrInvalidTransition, a.machine.State())
			}
			for {
				raw, err := config.ReadHidden("Recovery phrase: ")
				if err != nil {
					return err
				}
				_, err = a.machine.Restore(ctx, string(raw))
				clear(raw)
				if errors.Is(err, model.ErrSeedMismatch) || errors.Is(err, model.ErrInvalidSeed) {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				if err != nil {
					return err
				}
				printState(a.machine)
				return nil
			}
		}),
	}
}

func bindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind",
		Short: "Anchor the wallet's DID document on the ledger",
		Long: `Signs a DID document for the wallet and submits it. When submission fails
with a retryable error the signed transaction is kept and you are asked
whether to submit it again; nothing is resubmitted without confirmation.`,
		RunE: withResolved(func(ctx context.Context, a *app) error {
			in := bufio.NewReader(os.Stdin)
			ask := func(err error) bool {
				fmt.Fprintln(os.Stderr, "Submission failed:", err)
				return askYesNo(in, os.Stderr, "Submit the same signed transaction again? [y/N]: ")
			}
			if err := bindInteractive(ctx, a.machine, ask); err != nil {
				return err
			}
			printState(a.machine)
			return nil
		}),
	}
}

type bindingMachine interface {
	Bind(ctx context.Context) (onboarding.Transition, error)
	Resubmit(ctx context.Context) (onboarding.Transition, error)
	PendingBlob() *model.SignedBlob
}

// bindInteractive binds once and resubmits the kept blob for as long as the
// failure is retryable and ask approves.
func bindInteractive(ctx context.Context, m bindingMachine, ask func(error) bool) error {
	_, err := m.Bind(ctx)
	for err != nil && model.IsRetryable(err) && m.PendingBlob() != nil && ask(err) {
		_, err = m.Resubmit(ctx)
	}
	return err
}

// askYesNo reads one line; only y or yes counts as consent. EOF is a no.
func askYesNo(in *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the local wallet seed (the remote record is kept)",
		RunE: withResolved(func(ctx context.Context, a *app) error {
			if !yes {
				fmt.Fprint(os.Stderr, "This deletes the recovery phrase from this device. Type 'reset' to continue: ")
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if strings.TrimSpace(line) != "reset" {
					return errors.New("aborted")
				}
			}
			if _, err := a.machine.Reset(ctx); err != nil {
				return err
			}
			printState(a.machine)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}
