package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emmi-yeo/vendor-intelligence/internal/config"
	"github.com/emmi-yeo/vendor-intelligence/internal/guardrail"
	"github.com/emmi-yeo/vendor-intelligence/internal/schema"
	"github.com/emmi-yeo/vendor-intelligence/internal/storage"
)

// --- search ---

// searchResult is the subset of the search response the CLI renders.
type searchResult struct {
	ID       string `json:"id"`
	Mode     string `json:"mode"`
	Decision struct {
		Steps     []string `json:"steps"`
		Reasoning []string `json:"reasoning"`
	} `json:"hybrid_plan"`
	Structured *struct {
		Success  bool     `json:"success"`
		Stage    string   `json:"stage"`
		Reason   string   `json:"reason"`
		Error    string   `json:"error"`
		SQL      string   `json:"sql"`
		Columns  []string `json:"columns"`
		Rows     [][]any  `json:"rows"`
		RowCount int      `json:"row_count"`
	} `json:"structured_result"`
	Retrieval *struct {
		TotalChunks int `json:"total_chunks"`
		Retrieved   []struct {
			Index int    `json:"index"`
			Text  string `json:"text"`
		} `json:"retrieved_chunks"`
	} `json:"retrieval_result"`
	Ranked []map[string]any `json:"ranked_result"`
	Errors []struct {
		Step    string `json:"step"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"errors"`
	DurationMs int64 `json:"duration_ms"`
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search vendors, optionally against a requirement document",
	Long: `Search vendors, optionally against a requirement document.

Examples:
  vendorintel search "vendors in Selangor with CIDB G7"
  vendorintel search "which vendors meet these requirements" --file ./rfq.pdf
  vendorintel search "top 5 vendors by spend" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		file, _ := cmd.Flags().GetString("file")
		text, _ := cmd.Flags().GetString("text")
		asJSON, _ := cmd.Flags().GetBool("json")

		if query == "" {
			return errors.New("query is required")
		}
		if file != "" && text != "" {
			return errors.New("use only one of --file or --text")
		}

		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		var raw json.RawMessage
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			resp, err := client.postFile(cmd.Context(), "/v1/search", map[string]string{"query": query}, "document", file, data)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
		} else {
			req := map[string]any{"query": query}
			if text != "" {
				req["document_text"] = text
				req["document_name"] = "cli"
			}
			resp, err := client.post(cmd.Context(), "/v1/search", req)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
		}

		if asJSON {
			return printIndented(cmd.OutOrStdout(), raw)
		}
		var result searchResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("decoding search response: %w", err)
		}
		renderSearch(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("file", "", "requirement document to upload (pdf, html or txt)")
	searchCmd.Flags().String("text", "", "requirement text to match against")
	searchCmd.Flags().Bool("json", false, "print the raw JSON response")
}

func renderSearch(w io.Writer, r searchResult) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Mode:"), r.Mode)
	for _, line := range r.Decision.Reasoning {
		fmt.Fprintf(w, "  - %s\n", line)
	}

	if s := r.Structured; s != nil {
		fmt.Fprintln(w)
		if s.SQL != "" {
			fmt.Fprintf(w, "%s\n  %s\n", colorize(colorBold, "SQL:"), s.SQL)
		}
		switch {
		case !s.Success && s.Reason != "":
			fmt.Fprintf(w, "%s %s\n", colorize(colorYellow, "Rejected:"), s.Reason)
		case !s.Success:
			fmt.Fprintf(w, "%s %s: %s\n", colorize(colorRed, "Failed at"), s.Stage, s.Error)
		case len(r.Ranked) == 0:
			fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Rows:"), s.RowCount)
			if len(s.Rows) > 0 {
				printTable(w, s.Columns, s.Rows)
			}
		}
	}

	if len(r.Ranked) > 0 && r.Structured != nil {
		fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Ranked rows:"), len(r.Ranked))
		cols := append(append([]string{}, r.Structured.Columns...), "match_score")
		rows := make([][]any, len(r.Ranked))
		for i, rec := range r.Ranked {
			row := make([]any, len(cols))
			for j, c := range cols {
				row[j] = rec[c]
			}
			if f, ok := rec["match_score"].(float64); ok {
				row[len(cols)-1] = fmt.Sprintf("%.4f", f)
			}
			rows[i] = row
		}
		printTable(w, cols, rows)
	}

	if rt := r.Retrieval; rt != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %d of %d chunks\n", colorize(colorBold, "Retrieved:"), len(rt.Retrieved), rt.TotalChunks)
		for _, c := range rt.Retrieved {
			fmt.Fprintf(w, "  [%d] %s\n", c.Index, truncate(strings.Join(strings.Fields(c.Text), " "), 200))
		}
	}

	for _, e := range r.Errors {
		fmt.Fprintf(w, "%s %s (%s): %s\n", colorize(colorRed, "Error in"), e.Step, e.Kind, e.Message)
	}
}

func printIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <sql>",
	Short: "Check a SQL query against the read-only guardrail",
	Long: `Check a SQL query against the read-only guardrail without running it.

The allowed tables default to the tables of the schema file.

Examples:
  vendorintel validate "SELECT TOP 10 Name FROM Vendors"
  vendorintel validate "SELECT * FROM Vendors" --tables Vendors,Certifications --no-row-cap`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tablesStr, _ := cmd.Flags().GetString("tables")
		noRowCap, _ := cmd.Flags().GetBool("no-row-cap")

		var tables []string
		if tablesStr != "" {
			for _, t := range strings.Split(tablesStr, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tables = append(tables, t)
				}
			}
		} else {
			s, err := loadSchema(cmd)
			if err != nil {
				return fmt.Errorf("no --tables given and %w", err)
			}
			tables = s.TableNames()
		}

		v := guardrail.Validate(args[0], tables, !noRowCap)
		if !v.Valid {
			return fmt.Errorf("rejected: %s", v.Reason)
		}
		printSuccess("%s", v.Reason)
		return nil
	},
}

func init() {
	validateCmd.Flags().String("tables", "", "comma-separated allowed tables")
	validateCmd.Flags().Bool("no-row-cap", false, "do not require a TOP, LIMIT or FETCH clause")
	validateCmd.Flags().String("path", "", "schema file used when --tables is not given (default: schema.path)")
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the schema cache",
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the tables and columns of the schema cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := loadSchema(cmd)
		if err != nil {
			return err
		}
		if asJSON {
			return printIndented(cmd.OutOrStdout(), s)
		}

		w := cmd.OutOrStdout()
		if s.Database != "" {
			fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Database:"), s.Database)
		}
		for _, t := range s.Summaries() {
			fmt.Fprintf(w, "  %s (%s)\n", colorize(colorCyan, t.Table), strings.Join(t.Columns, ", "))
		}
		return nil
	},
}

func init() {
	schemaCmd.PersistentFlags().String("path", "", "schema file (default: schema.path)")
	schemaShowCmd.Flags().Bool("json", false, "print the schema as JSON")
	schemaCmd.AddCommand(schemaShowCmd)
}

func loadSchema(cmd *cobra.Command) (*schema.Schema, error) {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		path = cfg.Schema.Path
	}
	return schema.Load(path)
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recent searches",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		mode, _ := cmd.Flags().GetString("mode")
		stage, _ := cmd.Flags().GetString("stage")

		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", limit))
		if mode != "" {
			q.Set("mode", mode)
		}
		if stage != "" {
			q.Set("stage", stage)
		}
		resp, err := client.get(cmd.Context(), "/v1/runs?"+q.Encode())
		if err != nil {
			return err
		}

		var runs []storage.Run
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(w, "No searches found.")
			return nil
		}
		for _, r := range runs {
			status := colorize(colorGreen, "ok")
			switch {
			case r.Stage != "":
				status = colorize(colorYellow, r.Stage)
			case r.Error != "":
				status = colorize(colorRed, "error")
			}
			fmt.Fprintf(w, "%s  %s  %-15s %-10s %s\n",
				colorize(colorCyan, shortID(r.ID)),
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.Mode,
				status,
				truncate(r.Query, 80),
			)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single search record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient(cmd)
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/runs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var run storage.Run
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}
		return printIndented(cmd.OutOrStdout(), run)
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete search records older than a given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return errors.New("--older-than must be positive")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		n, err := store.DeleteRunsBefore(time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		printSuccess("Deleted %d search records", n)
		return nil
	},
}

func init() {
	runsPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete records older than this")
	runsCmd.AddCommand(runsPruneCmd)
	runsListCmd.Flags().Int("limit", 20, "maximum number of searches to list")
	runsListCmd.Flags().String("mode", "", "only searches routed to this mode")
	runsListCmd.Flags().String("stage", "", "only searches whose structured path stopped at this stage")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "# %s\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.Source != "default" {
				line += colorize(colorDim, "  ("+k.Source+")")
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value.\n\nValid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
