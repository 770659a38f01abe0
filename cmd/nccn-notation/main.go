// Command nccn-notation parses, validates, imports and exports NCCN UAT
// test-case notations from the command line.
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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nccn-uat-mcp-server/internal/config"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/store"
)

// errInvalid signals that validation found hard errors. It maps to exit code 1
// without an extra error line.
var errInvalid = errors.New("notation is invalid")

// Output formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatText = "text"
)

// app holds global flags and lazily built collaborators.
type app struct {
	format   string
	dataDir  string
	logLevel string

	cfg    *config.LiteConfig
	logger *logrus.Logger
	svc    *service.NotationService
	store  store.Store
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "nccn-notation",
		Short: "Parse and validate NCCN UAT test-case notations",
		Long: `nccn-notation converts test-case shorthand such as

  POS: FDR: Breast Cancer, age 45 AND SDR: Ovarian Cancer

into structured records, validates catalog spreadsheets and manages the
local results database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.format {
			case formatJSON, formatYAML, formatText:
			default:
				return fmt.Errorf("unsupported format %q (want json, yaml or text)", a.format)
			}
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.format, "format", "f", formatText, "Output format: json, yaml or text")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Data directory (default: $NCCN_DATA_DIR or ~/.nccn-uat)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newParseCmd(a),
		newValidateCmd(a),
		newVocabularyCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newSetupCmd(a),
	)
	return root, a
}

func (a *app) init() error {
	a.cfg = config.LoadLiteConfig()
	if a.dataDir != "" {
		a.cfg.DataDir = a.dataDir
	}

	a.logger = logrus.New()
	a.logger.SetOutput(os.Stderr)
	a.logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	a.logger.SetLevel(logrus.WarnLevel)
	if a.logLevel != "" {
		lvl, err := logrus.ParseLevel(a.logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", a.logLevel, err)
		}
		a.logger.SetLevel(lvl)
	}

	svc, err := service.NewNotationService(service.ServiceConfig{
		MemoryMaxItems: a.cfg.CacheMaxItems,
		Workers:        a.cfg.BatchWorkers,
	}, nil, a.logger)
	if err != nil {
		return err
	}
	a.svc = svc
	return nil
}

// resultStore opens the SQLite results database on first use.
func (a *app) resultStore() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := a.cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(a.cfg.ResultsDBPath())
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// render writes v in the selected format. text renders the text form.
func (a *app) render(w io.Writer, v any, text func(io.Writer)) error {
	switch a.format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, _ := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
