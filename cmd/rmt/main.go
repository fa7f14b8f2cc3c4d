package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"rmt-go/internal/app"
	"rmt-go/internal/config"
	"rmt-go/internal/rmt"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Dedup", "Purge").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "rmt",
	Short: "Maintenance jobs for the hosted student record store",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Println("Set store.base_url and RMT_API_TOKEN, then list your collections under [[collections]].")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Store URL:    %s\n", cfg.Store.BaseURL)
		fmt.Printf("Rate limit:   %.1f req/s (burst %d)\n", cfg.Store.RateLimit, cfg.Store.RateBurst)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Backup sink:  %s\n", cfg.Backup.Type)
		fmt.Printf("Collections:\n")
		for _, c := range cfg.Collections {
			fmt.Printf("  %-28s identity=%s preserved=%d\n", c.Name, c.IdentityField, len(c.Preserved))
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var configKeysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("KeysInit")
		if err != nil {
			return err
		}
		defer a.Close()

		enc := a.Encryptor()
		if enc.IsConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		passphrase, err := readPassphrase("Passphrase for the private key: ")
		if err != nil {
			return err
		}
		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Snapshot encryption keys generated.")
		return nil
	},
}

// scopeFlags reads the shared scope flags off a command.
func scopeFlags(cmd *cobra.Command) rmt.Scope {
	establishment, _ := cmd.Flags().GetString("establishment")
	tutorGroup, _ := cmd.Flags().GetString("tutor-group")
	yearGroup, _ := cmd.Flags().GetString("year-group")
	return rmt.Scope{
		Establishment: establishment,
		TutorGroup:    tutorGroup,
		YearGroup:     yearGroup,
	}
}

// gateFlags reads the shared safety flags off a command. For destructive
// commands with apply set and no --confirm value, the confirmation is
// prompted for when stdin is a terminal.
func gateFlags(cmd *cobra.Command, promptConfirmation bool) (rmt.GateConfig, error) {
	apply, _ := cmd.Flags().GetBool("apply")
	backup, _ := cmd.Flags().GetString("backup")
	confirmation, _ := cmd.Flags().GetString("confirm")

	if apply && promptConfirmation && confirmation == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Printf("This permanently deletes records. Type %s to continue: ", rmt.ConfirmPhrase)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return rmt.GateConfig{}, fmt.Errorf("reading confirmation: %w", err)
		}
		confirmation = strings.TrimSpace(line)
	}

	return rmt.GateConfig{
		Apply:        apply,
		Confirmation: confirmation,
		BackupName:   backup,
	}, nil
}

// dedup command
var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Delete duplicate records sharing a normalized email",
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		policyName, _ := cmd.Flags().GetString("policy")

		policy, err := rmt.ParseSurvivorPolicy(policyName)
		if err != nil {
			return err
		}

		gate, err := gateFlags(cmd, true)
		if err != nil {
			return err
		}

		a, err := newApp("Dedup")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Dedup(cmd.Context(), rmt.DedupRequest{
			Collection: collection,
			Scope:      scopeFlags(cmd),
			Policy:     policy,
			Gate:       gate,
		})
		printReport(report)
		return err
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copy records to the archive collection and clear their fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")

		gate, err := gateFlags(cmd, false)
		if err != nil {
			return err
		}

		a, err := newApp("ArchiveClear")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.ArchiveClear(cmd.Context(), rmt.ArchiveRequest{
			Collection: collection,
			Scope:      scopeFlags(cmd),
			Gate:       gate,
		})
		printReport(report)
		return err
	},
}

// purge command
var purgeCmd = &cobra.Command{
	Use:   "purge EMAIL",
	Short: "Delete a student's records across collections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		targets, _ := cmd.Flags().GetStringSlice("targets")
		onlyData, _ := cmd.Flags().GetBool("only-data")

		gate, err := gateFlags(cmd, true)
		if err != nil {
			return err
		}

		a, err := newApp("Purge")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Purge(cmd.Context(), rmt.PurgeRequest{
			Identity:    args[0],
			Collection:  collection,
			Targets:     targets,
			KeepPrimary: onlyData,
			Scope:       scopeFlags(cmd),
			Gate:        gate,
		})
		printReport(report)
		return err
	},
}

// lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup NAME",
	Short: "Find establishments by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Lookup")
		if err != nil {
			return err
		}
		defer a.Close()

		matches, err := a.LookupEstablishments(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(matches) == 0 {
			fmt.Println("No matching establishments.")
			return nil
		}
		for _, m := range matches {
			fmt.Printf("%s  %s\n", m.ID, m.Name)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "View recorded maintenance runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			return printOutcomes(a, args[0])
		}

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No maintenance runs recorded.")
			return nil
		}

		for _, r := range runs {
			finished := ""
			if r.FinishedAt.Valid {
				finished = r.FinishedAt.Time.Format("2006-01-02 15:04:05")
			}
			id := r.RunID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Printf("%s  %-14s  %-24s  %-10s  intents:%d ok:%d failed:%d  %s\n",
				id, r.Mode, r.Collection, r.State, r.Intents, r.Succeeded, r.Failed, finished)
		}
		return nil
	},
}

// printOutcomes renders the per-intent detail of one recorded run. runID
// may be the 8-character prefix shown by the run listing.
func printOutcomes(a *app.App, runID string) error {
	outcomes, err := a.GetOutcomes(runID)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Println("No outcomes recorded for that run.")
		return nil
	}

	for _, o := range outcomes {
		status := "ok"
		if !o.OK {
			status = fmt.Sprintf("FAILED (%s): %s", o.Kind, o.Err)
		}
		fmt.Printf("%-13s %s/%s  %s\n", o.Intent.Op, o.Intent.Collection, o.Intent.RecordID, status)
	}
	return nil
}

func readPassphrase(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(pass), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// printReport renders the preview and, for executed runs, the outcome
// summary.
func printReport(report *rmt.RunReport) {
	if report == nil || report.Preview == nil {
		return
	}

	p := report.Preview
	fmt.Printf("Run %s (%s, state %s)\n", report.RunID, report.Mode, report.State)
	if p.Total == 0 {
		fmt.Println("Nothing to do.")
		return
	}

	collections := make([]string, 0, len(p.Counts))
	for c := range p.Counts {
		collections = append(collections, c)
	}
	sort.Strings(collections)
	for _, c := range collections {
		for _, op := range []rmt.Op{rmt.OpArchiveCopy, rmt.OpClearFields, rmt.OpDelete} {
			if n := p.Counts[c][op]; n > 0 {
				fmt.Printf("  %-28s %-13s %d\n", c, op, n)
			}
		}
	}
	if len(p.Samples) > 0 {
		fmt.Println("Sample of affected records:")
		for _, s := range p.Samples {
			fmt.Printf("  %s  %s\n", s.ID, s.Collection)
		}
	}

	switch report.State {
	case rmt.StatePreviewed:
		fmt.Printf("Dry run: no records were changed. Re-run with --apply to execute %d operation(s).\n", p.Total)
	case rmt.StateCompleted:
		failed := report.Failures()
		fmt.Printf("Executed: %d succeeded, %d failed.\n", report.Succeeded(), len(failed))
		for _, f := range failed {
			fmt.Printf("  FAILED %s %s/%s (%s): %s\n", f.Intent.Op, f.Intent.Collection, f.Intent.RecordID, f.Kind, f.Err)
		}
	}
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)
	configKeysCmd.AddCommand(configKeysInitCmd)
	rootCmd.AddCommand(configCmd)

	for _, cmd := range []*cobra.Command{dedupCmd, archiveCmd, purgeCmd} {
		cmd.Flags().String("establishment", "", "Establishment ID (required scope filter)")
		cmd.Flags().String("tutor-group", "", "Narrow the scope to one tutor group")
		cmd.Flags().String("year-group", "", "Narrow the scope to one year group")
		cmd.Flags().Bool("apply", false, "Execute the plan (default is a dry run)")
		cmd.Flags().String("backup", "", "Snapshot name to write before mutating")
		cmd.Flags().String("confirm", "", "Confirmation literal for irreversible deletes")
		rootCmd.AddCommand(cmd)
	}

	dedupCmd.Flags().String("collection", "", "Collection to deduplicate")
	dedupCmd.Flags().String("policy", "oldest", "Survivor policy: oldest or newest")
	dedupCmd.MarkFlagRequired("collection")

	archiveCmd.Flags().String("collection", "", "Collection to archive and clear")
	archiveCmd.MarkFlagRequired("collection")

	purgeCmd.Flags().String("collection", "", "Collection holding the student account records")
	purgeCmd.Flags().StringSlice("targets", nil, "Collections the delete cascades to")
	purgeCmd.Flags().Bool("only-data", false, "Delete only cascaded data, keep the account record")
	purgeCmd.MarkFlagRequired("collection")

	rootCmd.AddCommand(lookupCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
