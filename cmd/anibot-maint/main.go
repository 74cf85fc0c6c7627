package main

import (
	"anibot/internal/anilistapi"
	"anibot/internal/bot"
	"anibot/internal/common"
	"anibot/internal/config"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "anibot-maint",
		Short: "Maintenance tasks for the anibot database",
		Long: `anibot-maint works on the SQLite file of the bot while it is stopped.
It reads the same environment and .env file as the bot.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			config.SetupLogging(level, false)
			return nil
		},
	}
	rootCmd.PersistentFlags().String("db", "", "SQLite file (default: ANIBOT_DB_PATH)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level")

	// Migrate command - bring the schema up to date
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending migrations",
		RunE:  runMigrate,
	}

	// Prune command - drop users gone from AniList
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove registrations whose AniList user no longer exists",
		RunE:  runPrune,
	}
	pruneCmd.Flags().Bool("dry-run", false, "Only print what would be removed")

	// Export command - library of a user to a file
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the library of an AniList user",
		RunE:  runExport,
	}
	exportCmd.Flags().String("user", "", "AniList user name")
	exportCmd.Flags().String("type", "anime", "Library: anime|manga")
	exportCmd.Flags().String("format", string(anilistapi.EXPORT_CSV), "Output format: csv|json")
	exportCmd.Flags().String("out", "-", "Output file, - for stdout")
	cobra.CheckErr(exportCmd.MarkFlagRequired("user"))

	countsCmd := &cobra.Command{
		Use:   "counts",
		Short: "Print the number of rows of every table",
		RunE:  runCounts,
	}

	rootCmd.AddCommand(migrateCmd, pruneCmd, exportCmd, countsCmd)
	return rootCmd
}

// Everything a maintenance task needs, with the schema up to date
type environment struct {
	cfg        config.Config
	database   common.Database
	anilistapi *anilistapi.AnilistApi
	bot        bot.DatabaseBot
}

func open(cmd *cobra.Command) (*environment, error) {

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		cfg.DatabasePath = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	database, err := common.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	anilist, err := anilistapi.NewAnilistApi(cfg.AnilistUrl, database, cfg.AnilistRequestsPerMinute, cfg.MediaCacheTtl)
	if err != nil {
		database.Close()
		return nil, err
	}
	databaseBot, err := bot.CreateDatabaseBot(database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return &environment{cfg: cfg, database: database, anilistapi: anilist, bot: databaseBot}, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	env, err := open(cmd)
	if err != nil {
		return err
	}
	defer env.database.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "Schema of %s is up to date\n", env.cfg.DatabasePath)
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {

	env, err := open(cmd)
	if err != nil {
		return err
	}
	defer env.database.Close()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ctx := cmd.Context()

	ids, err := env.bot.GetRegisteredAnilistIds(ctx)
	if err != nil {
		return err
	}

	pruned := 0
	for _, id := range ids {
		_, err := env.anilistapi.GetUserById(ctx, id, true)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrNotFound) {
			log.Warn().Err(err).Msg(fmt.Sprintf("Could not check user %d, keeping it", id))
			continue
		}
		pruned++
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "Would remove user %d\n", id)
			continue
		}
		n, err := env.bot.RemoveAnilistUser(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed user %d (%d registrations)\n", id, n)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Checked %d users, %d gone from AniList\n", len(ids), pruned)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {

	name, _ := cmd.Flags().GetString("user")
	typeValue, _ := cmd.Flags().GetString("type")
	formatValue, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	mediaType, err := anilistapi.ParseMediaType(typeValue)
	if err != nil {
		return err
	}
	format, err := anilistapi.ParseExportFormat(formatValue)
	if err != nil {
		return err
	}

	env, err := open(cmd)
	if err != nil {
		return err
	}
	defer env.database.Close()
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	// Request
	user, err := env.anilistapi.GetUser(ctx, name)
	if err != nil {
		return err
	}
	entries, err := env.anilistapi.GetMediaListCollection(ctx, user.Id, mediaType)
	if err != nil {
		return err
	}
	anilistapi.SortEntries(entries)

	// Write
	var w io.Writer = cmd.OutOrStdout()
	if out != "-" {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer file.Close()
		w = file
	}
	if err := anilistapi.WriteExport(w, format, entries); err != nil {
		return err
	}
	if out != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d %s entries of %s to %s\n", len(entries), mediaType.Lower(), user.Name, out)
	}
	return nil
}

func runCounts(cmd *cobra.Command, args []string) error {

	env, err := open(cmd)
	if err != nil {
		return err
	}
	defer env.database.Close()

	tables := append([]string{"schema_migrations", "anilist_users"}, bot.Tables...)
	counts, err := env.database.Counts(cmd.Context(), tables...)
	if err != nil {
		return err
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", table, counts[table])
	}
	return nil
}
