package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/internal/importer"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/setup"
)

func newParseCmd(a *app) *cobra.Command {
	var targetRule, platform string

	cmd := &cobra.Command{
		Use:   "parse <notation>",
		Short: "Parse a notation into a structured test case",
		Long: `Parses a notation and prints the structured record. Arguments are joined
with spaces, so quoting the notation is optional.`,
		Example: `  nccn-notation parse "POS: FDR: Breast Cancer, age 45"
  nccn-notation parse --format json "NEG: PHX: Prostate Cancer, Gleason 6"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, record := a.svc.Parse(cmd.Context(), strings.Join(args, " "), targetRule, platform)
			out := struct {
				Usable   bool                   `json:"usable" yaml:"usable"`
				TestCase *domain.TestCaseRecord `json:"test_case" yaml:"test_case"`
			}{parsed.Usable(), record}
			return a.render(cmd.OutOrStdout(), out, func(w io.Writer) {
				writeRecord(w, record)
				if !parsed.Usable() {
					fmt.Fprintln(w, "Result is not usable: no entries were parsed")
				}
			})
		},
	}
	cmd.Flags().StringVar(&targetRule, "target-rule", "", "Target rule attached to the record")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform attached to the record")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <notation | ->",
		Short: "Validate notations",
		Long: `Validates a notation. With "-" notations are read from standard input,
one per line, and validated as a batch. Exits with status 1 when any
notation is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && args[0] == "-" {
				return a.validateLines(cmd, cmd.InOrStdin())
			}

			report := a.svc.Validate(cmd.Context(), strings.Join(args, " "))
			if err := a.render(cmd.OutOrStdout(), report, func(w io.Writer) {
				writeReport(w, report)
			}); err != nil {
				return err
			}
			if !report.Valid {
				return errInvalid
			}
			return nil
		},
	}
}

func (a *app) validateLines(cmd *cobra.Command, r io.Reader) error {
	var items []service.BatchItem
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		items = append(items, service.BatchItem{ID: fmt.Sprintf("line %d", line), Notation: text})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading notations: %w", err)
	}

	results, err := a.svc.ValidateBatch(cmd.Context(), items)
	if err != nil {
		return err
	}

	invalid := 0
	for _, res := range results {
		if !res.Report.Valid {
			invalid++
		}
	}
	if err := a.render(cmd.OutOrStdout(), results, func(w io.Writer) {
		for i, res := range results {
			fmt.Fprintf(w, "%s: %s\n", res.ID, items[i].Notation)
			writeReport(indent(w), res.Report)
		}
		fmt.Fprintf(w, "%d notations, %d invalid\n", len(results), invalid)
	}); err != nil {
		return err
	}
	if invalid > 0 {
		return errInvalid
	}
	return nil
}

func newVocabularyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vocabulary",
		Short: "List recognized outcome, relationship and cancer type codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vocab := a.svc.Vocabulary()
			return a.render(cmd.OutOrStdout(), vocab, func(w io.Writer) {
				fmt.Fprintln(w, "Outcomes:")
				for _, code := range sortedKeys(vocab.Outcomes) {
					fmt.Fprintf(w, "  %-12s %s\n", code, vocab.Outcomes[code])
				}
				fmt.Fprintln(w, "Relationships:")
				for _, code := range sortedKeys(vocab.Relationships) {
					fmt.Fprintf(w, "  %-12s %s\n", code, vocab.Relationships[code])
				}
				fmt.Fprintf(w, "Cancer types: %s\n", strings.Join(vocab.CancerTypes, ", "))
				fmt.Fprintf(w, "Conjunction: %s  Same relative marker: %s\n", vocab.Conjunction, vocab.SameMarker)
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var cycleID string
	var commit bool

	cmd := &cobra.Command{
		Use:   "import <catalog.xlsx | catalog.csv>",
		Short: "Validate a test catalog spreadsheet and optionally store it",
		Long: `Reads the "Test Profile Catalog" sheet of a UAT workbook, or a CSV export
of it, validates the notation in the Patient Conditions column of every
profile and prints a summary. Nothing is written unless --commit is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			opts := importer.Options{
				CycleID: cycleID,
				Commit:  commit,
				Source:  filepath.Base(args[0]),
				Format:  importer.FormatForPath(args[0]),
			}
			im := importer.New(a.svc, nil, a.logger)
			if commit {
				s, err := a.resultStore()
				if err != nil {
					return err
				}
				im = importer.New(a.svc, s, a.logger)
			}

			summary, err := im.Import(cmd.Context(), f, opts)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), summary, func(w io.Writer) {
				writeSummary(w, summary)
			})
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "UAT cycle the profiles belong to")
	cmd.Flags().BoolVar(&commit, "commit", false, "Store the validated profiles")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var cycleID, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored results as JSON",
		Long: `Writes stored results as JSON to standard output, or to --output. An
output of "default" writes a timestamped file into the data directory's
export folder.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.resultStore()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				if output == "default" {
					output = filepath.Join(a.cfg.ExportDir(), fmt.Sprintf("results-%s.json", time.Now().UTC().Format("20060102-150405")))
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if err := s.ExportJSON(cmd.Context(), w, cycleID); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported results to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "Only export results of this cycle")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	return cmd
}

func newSetupCmd(a *app) *cobra.Command {
	var configPath, binaryPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with Claude Desktop",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Client config file (default: per-OS location)")

	register := &cobra.Command{
		Use:   "register",
		Short: "Add or update the server entry in the client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := setup.Register(setup.Options{
				ConfigPath: configPath,
				BinaryPath: binaryPath,
				DataDir:    a.dataDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", setup.ServerKey, path)
			fmt.Fprintln(cmd.OutOrStdout(), "Restart Claude Desktop to load the server.")
			return nil
		},
	}
	register.Flags().StringVar(&binaryPath, "binary", "", "Path to "+setup.BinaryName+" (default: searched)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the registration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setup.GetStatus(configPath)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), st, func(w io.Writer) {
				fmt.Fprintf(w, "Config file: %s\n", st.ConfigPath)
				fmt.Fprintf(w, "Registered:  %t\n", st.Configured)
				if st.ServerPath != "" {
					fmt.Fprintf(w, "Server:      %s\n", st.ServerPath)
				}
				fmt.Fprintf(w, "Data dir:    %s\n", st.DataDir)
				for _, issue := range st.Issues {
					fmt.Fprintf(w, "  ! %s\n", issue)
				}
				if st.Healthy() {
					fmt.Fprintln(w, "Status: OK")
				}
			})
		},
	}

	cmd.AddCommand(register, status)
	return cmd
}

func writeRecord(w io.Writer, rec *domain.TestCaseRecord) {
	fmt.Fprintf(w, "Expected outcome: %s\n", rec.ExpectedOutcome)
	if rec.TargetRule != nil {
		fmt.Fprintf(w, "Target rule: %s\n", *rec.TargetRule)
	}
	if rec.Platform != nil {
		fmt.Fprintf(w, "Platform: %s\n", *rec.Platform)
	}
	for _, e := range rec.Entries {
		label := fmt.Sprintf("%s (%s)", e.RelationshipCode, e.RelationshipType)
		if e.IsSameRelative {
			label += " same relative"
		}
		fmt.Fprintf(w, "  %s\n", label)
		for _, c := range e.Conditions {
			fmt.Fprintf(w, "    - %s%s\n", c.CancerType, conditionDetails(c))
		}
	}
	for _, pe := range rec.ParseErrors {
		fmt.Fprintf(w, "  parse error: %s\n", pe)
	}
}

func conditionDetails(c domain.ConditionRecord) string {
	var parts []string
	if c.AgeDiagnosed != nil {
		parts = append(parts, fmt.Sprintf("age %d", *c.AgeDiagnosed))
	}
	if c.SeverityScore != nil {
		parts = append(parts, fmt.Sprintf("Gleason %d", *c.SeverityScore))
	}
	if c.IsAggressive != nil {
		if *c.IsAggressive {
			parts = append(parts, "aggressive")
		} else {
			parts = append(parts, "non-aggressive")
		}
	}
	if c.IsMetastatic != nil && *c.IsMetastatic {
		parts = append(parts, "metastatic")
	}
	if c.AdditionalNotes != nil {
		parts = append(parts, *c.AdditionalNotes)
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

func writeReport(w io.Writer, report *domain.ValidationReport) {
	if report.Valid {
		fmt.Fprintln(w, "VALID")
	} else {
		fmt.Fprintln(w, "INVALID")
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	for _, warn := range report.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
}

func writeSummary(w io.Writer, s *importer.Summary) {
	fmt.Fprintln(w, s.Message)
	fmt.Fprintf(w, "Profiles: %d found, %d valid, %d invalid\n", s.ProfilesFound, s.Valid, s.Invalid)
	if !s.PreviewOnly {
		fmt.Fprintf(w, "Stored: %d created, %d updated\n", s.Created, s.Updated)
	}
	writeBuckets(w, "Platform", s.ByPlatform)
	writeBuckets(w, "Change type", s.ByChangeType)
	writeBuckets(w, "Test type", s.ByTestType)
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  line %d %s: %s\n", f.Line, f.ProfileID, strings.Join(f.Errors, "; "))
	}
	for _, an := range s.Annotations {
		fmt.Fprintf(w, "  line %d %s: %s\n", an.Line, an.ProfileID, an.Message)
	}
}

func writeBuckets(w io.Writer, title string, buckets map[string]int) {
	if len(buckets) == 0 {
		return
	}
	parts := make([]string, 0, len(buckets))
	for _, k := range sortedKeys(buckets) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, buckets[k]))
	}
	fmt.Fprintf(w, "%s: %s\n", title, strings.Join(parts, " "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type indentWriter struct{ w io.Writer }

func (iw indentWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(iw.w, "  "); err != nil {
		return 0, err
	}
	return iw.w.Write(p)
}

// indent prefixes every Write with two spaces. Callers write whole lines.
func indent(w io.Writer) io.Writer { return indentWriter{w} }
