package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/memnotes/internal/bank"
	"github.com/conorfennell/memnotes/internal/banksync"
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Maintain the reference question bank",
	Long: `Maintain the reference question bank that the "import test set"
action copies into account stores.

Examples:
  # Register a local directory of markdown files
  memnotes bank add-source ./questions

  # Register a git repository, then pull and index every source
  memnotes bank add-source https://github.com/example/questions.git
  memnotes bank sync`,
}

var bankAddSourceCmd = &cobra.Command{
	Use:   "add-source <path-or-git-url>",
	Short: "Register a local directory or git repository as a bank source",
	Args:  cobra.ExactArgs(1),
	RunE:  runBankAddSource,
}

var bankSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull every source and reconcile its notes into the bank",
	Args:  cobra.NoArgs,
	RunE:  runBankSync,
}

var bankListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bank sources",
	Args:  cobra.NoArgs,
	RunE:  runBankList,
}

func init() {
	bankSyncCmd.Flags().String("repos-dir", "", "directory git sources are cloned into")
	bankCmd.AddCommand(bankAddSourceCmd, bankSyncCmd, bankListCmd)
}

func openBank(cmd *cobra.Command) (*bank.Store, *banksync.Syncer, error) {
	cfg, logger, err := setup(cmd, false)
	if err != nil {
		return nil, nil, err
	}
	store, err := bank.Open(cfg.Bank.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, banksync.New(store, cfg.Bank.ReposDir, logger), nil
}

func runBankAddSource(cmd *cobra.Command, args []string) error {
	store, syncer, err := openBank(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := syncer.AddSource(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Source %d: %s\n", id, args[0])
	return nil
}

func runBankSync(cmd *cobra.Command, _ []string) error {
	store, syncer, err := openBank(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := syncer.Run(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range reports {
		fmt.Fprintf(out, "%s: %d parsed, %d inserted, %d deleted, %d errors\n",
			r.Path, r.Parsed, r.Inserted, r.Deleted, len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}
	total, err := store.CountNotes(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Bank holds %d notes.\n", total)
	return nil
}

func runBankList(cmd *cobra.Command, _ []string) error {
	store, _, err := openBank(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	sources, err := store.AllSources(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tLAST SCANNED\tPATH")
	for _, s := range sources {
		scanned := "never"
		if s.LastScanned.Valid {
			scanned = s.LastScanned.Time.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Type, scanned, s.Path)
	}
	return tw.Flush()
}
