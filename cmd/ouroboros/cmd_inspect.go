package main

import (
	"fmt"
	"io"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/danielpatrickdp/ouroboros/internal/logging"
	"github.com/danielpatrickdp/ouroboros/internal/state"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show stored state versions and provenance",
		Long: `List the most recent versions in the SQLite store, show a single
version's payload with --version, or list provenance entries with --provenance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			if dbPath == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				dbPath = cfg.Storage.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no database configured: pass --db")
			}

			store, err := state.NewStore(dbPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer store.Close()

			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			if id, _ := cmd.Flags().GetString("version"); id != "" {
				return runDetailMode(out, store, id, jsonOut)
			}
			if n, _ := cmd.Flags().GetInt("provenance"); n > 0 {
				return runProvenanceMode(out, store, n, jsonOut)
			}
			last, _ := cmd.Flags().GetInt("last")
			return runListMode(out, store, last, jsonOut)
		},
	}

	cmd.Flags().String("db", "", "Path to the SQLite store (default from config)")
	cmd.Flags().Int("last", 20, "Show N most recent versions")
	cmd.Flags().String("version", "", "Show a single version in detail")
	cmd.Flags().Int("provenance", 0, "Show the N most recent provenance entries instead of versions")
	return cmd
}

// #region list-mode

type listRow struct {
	VersionID string         `json:"version_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Kind      attribute.Kind `json:"kind"`
	Size      int            `json:"size"`
	CreatedAt string         `json:"created_at"`
}

func runListMode(out io.Writer, store *state.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(out, "no versions found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(versions))
	for i, v := range versions {
		rows[len(versions)-1-i] = listRow{
			VersionID: v.ID,
			ParentID:  v.ParentID,
			Kind:      v.Kind,
			Size:      v.Size(),
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(out, rows)
	}

	fmt.Fprintf(out, "%-10s  %-10s  %-8s  %5s  %s\n", "Version", "Parent", "Kind", "Size", "Time")
	fmt.Fprintf(out, "%-10s+-%-10s+-%-8s+-%5s+-%s\n", "----------", "----------", "--------", "-----", "--------------------")
	for _, r := range rows {
		parent := "-"
		if r.ParentID != "" {
			parent = shortID(r.ParentID)
		}
		fmt.Fprintf(out, "%-10s  %-10s  %-8s  %5d  %s\n", shortID(r.VersionID), parent, r.Kind, r.Size, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	VersionID string           `json:"version_id"`
	ParentID  string           `json:"parent_id,omitempty"`
	Kind      attribute.Kind   `json:"kind"`
	CreatedAt string           `json:"created_at"`
	Record    attribute.Record `json:"record"`
}

func runDetailMode(out io.Writer, store *state.Store, id string, jsonOut bool) error {
	v, err := store.GetVersion(id)
	if err != nil {
		return err
	}
	d := detailOutput{
		VersionID: v.ID,
		ParentID:  v.ParentID,
		Kind:      v.Kind,
		CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Record:    v.Record,
	}
	if jsonOut {
		return printJSON(out, d)
	}

	fmt.Fprintf(out, "Version:  %s\n", d.VersionID)
	if d.ParentID != "" {
		fmt.Fprintf(out, "Parent:   %s\n", d.ParentID)
	}
	fmt.Fprintf(out, "Kind:     %s\n", d.Kind)
	fmt.Fprintf(out, "Created:  %s\n\n", d.CreatedAt)

	switch r := v.Record.(type) {
	case attribute.Mapping:
		printMapping(out, r, "")
	case attribute.Cycles:
		for _, s := range r {
			fmt.Fprintf(out, "%s:\n", s.Label)
			printMapping(out, s.Values, "  ")
		}
	}
	return nil
}

func printMapping(out io.Writer, m attribute.Mapping, indent string) {
	for _, k := range m.Keys() {
		fmt.Fprintf(out, "%s%-24s %12.6f\n", indent, k, m[k])
	}
}

// #endregion detail-mode

// #region provenance-mode

func runProvenanceMode(out io.Writer, store *state.Store, n int, jsonOut bool) error {
	entries, err := logging.NewProvenanceLog(store.DB()).Entries("", 0)
	if err != nil {
		return err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if jsonOut {
		return printJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no provenance entries found")
		return nil
	}

	fmt.Fprintf(out, "%-6s  %-10s  %-8s  %-12s  %s\n", "ID", "Run", "Stage", "Ethics", "Time")
	for _, e := range entries {
		fmt.Fprintf(out, "%-6d  %-10s  %-8s  %-12s  %s\n",
			e.ID, shortID(e.RunID), e.Stage, e.Ethics, e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion provenance-mode
