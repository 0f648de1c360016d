package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/memnotes/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade note stores written by older versions",
}

var migrateSubjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "Convert subject and topic columns into tags",
	Long: `Convert the subject and topic columns of an old note store into tags
named "Subject: <x>" and "Topic: <y>", then drop the columns. Stores without
the columns are left untouched.

Examples:
  memnotes migrate subjects --db users/data/alice.db`,
	Args: cobra.NoArgs,
	RunE: runMigrateSubjects,
}

func init() {
	migrateSubjectsCmd.Flags().String("db", "", "note store to convert")
	_ = migrateSubjectsCmd.MarkFlagRequired("db")
	migrateCmd.AddCommand(migrateSubjectsCmd)
}

func runMigrateSubjects(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("db")
	if err != nil {
		return err
	}
	db, err := storage.OpenExisting(path)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.ConvertSubjectsToTags(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !res.Converted {
		fmt.Fprintf(out, "%s has no subject or topic columns; nothing to do.\n", path)
		return nil
	}
	fmt.Fprintf(out, "Converted %s: %d tags added, %d links created.\n", path, res.TagsAdded, res.Links)
	return nil
}
