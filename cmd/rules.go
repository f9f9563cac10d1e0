package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/model"
	"github.com/oceanid/ingest-worker/internal/rules"
)

var (
	resolveColumn     string
	resolveSourceType string
	resolveSourceName string
	importRulesFile   string
)

// ruleView is the JSON form of a compiled rule.
type ruleView struct {
	model.CleaningRule
	Kind  string `json:"kind"`
	Inert bool   `json:"inert,omitempty"`
	Error string `json:"error,omitempty"`
}

func ruleViews(list []rules.Rule) []ruleView {
	out := make([]ruleView, 0, len(list))
	for _, r := range list {
		v := ruleView{CleaningRule: r.Definition()}
		switch rr := r.(type) {
		case rules.RegexReplace:
			v.Kind = "regex_replace"
		case rules.Validator:
			v.Kind = "validator"
		case rules.TypeCoercion:
			v.Kind = "type_coercion"
		case rules.FormatStandardizer:
			v.Kind = "format_standardizer"
		case rules.FieldMerger:
			v.Kind = "field_merger"
		case rules.Inert:
			v.Kind = "inert"
			v.Inert = true
			if rr.Reason != nil {
				v.Error = rr.Reason.Error()
			}
		}
		out = append(out, v)
	}
	return out
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and import cleaning rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every active rule by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closeFn, err := loadRegistry(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		return printJSON(cmd.OutOrStdout(), ruleViews(reg.Index().Rules()))
	},
}

var rulesResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show the rules that apply to one column",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveColumn == "" {
			return eris.New("--column is required")
		}
		reg, closeFn, err := loadRegistry(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		return printJSON(cmd.OutOrStdout(), ruleViews(reg.Resolve(resolveColumn, resolveSourceType, resolveSourceName)))
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert rules from a YAML file into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importRulesFile == "" {
			return eris.New("--file is required")
		}
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		data, err := os.ReadFile(importRulesFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", importRulesFile)
		}
		defs, err := rules.DecodeYAML(data)
		if err != nil {
			return err
		}

		// Build logs any rule that will not compile before it is stored.
		idx := rules.Build(defs)

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertRules(cmd.Context(), defs)
		if err != nil {
			return err
		}
		zap.L().Info("rules imported", zap.Int64("rows", n), zap.Int("inert", idx.Invalid()))
		return nil
	},
}

// loadRegistry loads rules from the rules file or, failing that, the store.
func loadRegistry(cmd *cobra.Command) (*rules.Registry, func(), error) {
	closeFn := func() {}
	var src rules.Source
	if cfg.Rules.File != "" {
		src = rules.FileSource{Path: cfg.Rules.File}
	} else {
		st, err := initStore(cmd.Context())
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { _ = st.Close() }
		src = st
	}

	reg := rules.NewRegistry(src)
	if _, err := reg.Reload(cmd.Context()); err != nil {
		closeFn()
		return nil, nil, eris.Wrap(err, "load rules")
	}
	return reg, closeFn, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rulesResolveCmd.Flags().StringVar(&resolveColumn, "column", "", "column header")
	rulesResolveCmd.Flags().StringVar(&resolveSourceType, "source-type", "", "source type, e.g. RFMO")
	rulesResolveCmd.Flags().StringVar(&resolveSourceName, "source-name", "", "source name, e.g. ICCAT")
	rulesImportCmd.Flags().StringVar(&importRulesFile, "file", "", "YAML rule file")

	rulesCmd.AddCommand(rulesListCmd, rulesResolveCmd, rulesImportCmd)
	rootCmd.AddCommand(rulesCmd)
}
