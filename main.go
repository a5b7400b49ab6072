package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"smartvault-go/internal/history"
	"smartvault-go/internal/signer"
	"smartvault-go/internal/smartaccount"
)

var (
	flagConfig string
	flagOutput string
)

// newRootCmd wires the command surface. Every command loads config,
// builds the app and closes it (flushing metrics and the journal) on the
// way out.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smartvault",
		Short:         "Squads v4 smart account for this device",
		Long:          "Find or create the device multisig and run transactions through its vault.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format: json|text")

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show identity, multisig, vault and balances",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			store, err := a.keyStore()
			if err != nil {
				return err
			}
			id, err := store.Load()
			if errors.Is(err, signer.ErrNoIdentity) {
				fmt.Fprintln(cmd.OutOrStdout(), "no identity yet; run init")
				return nil
			}
			if err != nil {
				return err
			}
			report, err := a.status(cmd.Context(), id)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), report, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "creator\t%s\t%s SOL\n", report.Creator, report.CreatorSOL)
				fmt.Fprintf(tw, "multisig\t%s\t\n", report.Multisig)
				fmt.Fprintf(tw, "vault %d\t%s\t%s SOL\n", report.VaultIndex, report.Vault, report.VaultBalanceSOL)
				if report.Exists {
					fmt.Fprintf(tw, "transaction index\t%d\t\n", report.TransactionIndex)
					fmt.Fprintf(tw, "threshold\t%d of %d\t\n", report.Threshold, report.Members)
				} else {
					fmt.Fprintf(tw, "state\tnot created\t\n")
				}
				tw.Flush()
			})
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the identity and multisig if they do not exist",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			id, err := a.loadOrCreateIdentity()
			if err != nil {
				return err
			}
			ms, err := a.orch.GetOrCreate(cmd.Context(), id)
			if err != nil {
				return err
			}
			vault := a.orch.Addresses(id).Vault
			out := map[string]interface{}{
				"multisig":          ms.Address.String(),
				"vault":             vault.String(),
				"transaction_index": ms.TransactionIndex,
			}
			return render(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "multisig %s ready (vault %s, transaction index %d)\n",
					ms.Address, vault, ms.TransactionIndex)
			})
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Execute a 1 lamport transfer from the vault to the creator",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			id, err := a.loadOrCreateIdentity()
			if err != nil {
				return err
			}
			exec, err := a.orch.Ping(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"signature":         exec.Signature.String(),
				"transaction_index": exec.TransactionIndex,
			}
			return render(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "executed transaction %d: %s\n", exec.TransactionIndex, exec.Signature)
			})
		}),
	})

	var (
		historyLimit    int
		historyMultisig string
	)
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent submissions from the journal",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			if a.journal == nil {
				return errors.New("journal disabled: set history.path")
			}
			var (
				entries []history.Entry
				err     error
			)
			if historyMultisig != "" {
				ms, perr := solana.PublicKeyFromBase58(historyMultisig)
				if perr != nil {
					return fmt.Errorf("invalid --multisig: %w", perr)
				}
				entries, err = a.journal.ForMultisig(ms)
			} else {
				entries, err = a.journal.Recent(historyLimit)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), entries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tKIND\tINDEX\tRESULT\tSIGNATURE")
				for _, e := range entries {
					result := "ok"
					if e.Failed() {
						result = e.ErrorKind
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
						e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, e.TransactionIndex, result, e.Signature)
				}
				tw.Flush()
			})
		}),
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries")
	historyCmd.Flags().StringVar(&historyMultisig, "multisig", "", "Only list submissions against this multisig, oldest first")
	root.AddCommand(historyCmd)

	return root
}

// withApp builds the app for one command run and always closes it.
func withApp(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		a, err := newApp(flagConfig)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.close())
		}()
		if err := run(cmd, a); err != nil {
			a.logger.Debug().Err(err).Str("error_kind", smartaccount.Kind(err)).Msg("command failed")
			return err
		}
		return nil
	}
}

func render(w io.Writer, v interface{}, text func(io.Writer)) error {
	switch flagOutput {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		text(w)
		return nil
	default:
		return fmt.Errorf("invalid --output: %s (use json|text)", flagOutput)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", smartaccount.Kind(err), err)
		os.Exit(1)
	}
}
