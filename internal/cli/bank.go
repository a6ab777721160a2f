package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/verdict/internal/bank"
)

var (
	truthFlag  string
	filterFlag string
	queryFlag  string
)

var (
	bankCmd = &cobra.Command{
		Use:   "bank",
		Short: "Manage the statement bank",
	}

	bankAddCmd = &cobra.Command{
		Use:   "add <statement>",
		Short: "Add a known statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openStatements(cmd)
			if err != nil {
				return err
			}
			truth, err := parseTruthFlag(truthFlag)
			if err != nil {
				return err
			}
			if truth == nil {
				return fmt.Errorf("--truth is required")
			}
			added, err := b.Add(args[0], *truth)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("Statement already in the bank."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Statement added."))
			return nil
		},
	}

	bankListCmd = &cobra.Command{
		Use:   "list",
		Short: "List known statements",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openStatements(cmd)
			if err != nil {
				return err
			}
			items := b.List(bank.Filter(filterFlag), queryFlag)
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No statements."))
				return nil
			}
			fmt.Fprintln(out, cell("ID", idWidth, titleStyle)+cell("TRUTH", 8, titleStyle)+cell("STATEMENT", 72, titleStyle))
			for _, s := range items {
				style := errorStyle
				if s.IsTrue {
					style = okStyle
				}
				fmt.Fprintln(out, cell(strconv.Itoa(s.ID), idWidth, mutedStyle)+
					cell(strconv.FormatBool(s.IsTrue), 8, style)+
					cell(s.Text, 72, mutedStyle.UnsetForeground()))
			}
			return nil
		},
	}

	bankRemoveCmd = &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			b, err := openStatements(cmd)
			if err != nil {
				return err
			}
			return reportRemoved(cmd, "Statement", id)(b.Remove(id))
		},
	}

	bankImportCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Import statements from a CSV or text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openStatements(cmd)
			if err != nil {
				return err
			}
			truth, err := parseTruthFlag(truthFlag)
			if err != nil {
				return err
			}
			added, dups, err := b.Import(args[0], truth)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Imported %d statement(s), %d duplicate(s) skipped.", added, dups)))
			return nil
		},
	}

	bankExportCmd = &cobra.Command{
		Use:   "export <file>",
		Short: "Export statements to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openStatements(cmd)
			if err != nil {
				return err
			}
			n, err := b.Export(args[0], bank.Filter(filterFlag))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Exported %d statement(s) to %s.", n, args[0])))
			return nil
		},
	}
)

var (
	materialsCmd = &cobra.Command{
		Use:   "materials",
		Short: "Manage files attached to essay generation",
	}

	materialsAddCmd = &cobra.Command{
		Use:   "add <file>...",
		Short: "Register material files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := bank.LoadMaterials(cfg.Data.Materials)
			if err != nil {
				return err
			}
			for _, path := range args {
				m, err := b.Add(path)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("#%d %s", m.ID, m.Path)))
			}
			return nil
		},
	}

	materialsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List material files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := bank.LoadMaterials(cfg.Data.Materials)
			if err != nil {
				return err
			}
			items := b.List()
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No materials."))
			}
			for _, m := range items {
				fmt.Fprintln(cmd.OutOrStdout(), cell(strconv.Itoa(m.ID), idWidth, mutedStyle)+m.Path)
			}
			return nil
		},
	}

	materialsRemoveCmd = &cobra.Command{
		Use:   "remove <id>",
		Short: "Unregister a material file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := bank.LoadMaterials(cfg.Data.Materials)
			if err != nil {
				return err
			}
			return reportRemoved(cmd, "Material", id)(b.Remove(id))
		},
	}
)

var (
	examplesCmd = &cobra.Command{
		Use:   "examples",
		Short: "Manage style examples for essay generation",
	}

	examplesAddCmd = &cobra.Command{
		Use:   "add <question> <answer>",
		Short: "Add a style example",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openExamples(cmd)
			if err != nil {
				return err
			}
			added, err := b.Add(args[0], args[1])
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("Example already exists."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Example added."))
			return nil
		},
	}

	examplesImportCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Import question/answer pairs from CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openExamples(cmd)
			if err != nil {
				return err
			}
			added, dups, err := b.Import(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Imported %d example(s), %d duplicate(s) skipped.", added, dups)))
			return nil
		},
	}

	examplesListCmd = &cobra.Command{
		Use:   "list",
		Short: "List style examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openExamples(cmd)
			if err != nil {
				return err
			}
			items := b.List()
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No examples."))
			}
			for _, e := range items {
				fmt.Fprintln(cmd.OutOrStdout(), cell(strconv.Itoa(e.ID), idWidth, mutedStyle)+
					cell(e.Question, 40, titleStyle)+cell(e.Answer, 60, mutedStyle))
			}
			return nil
		},
	}

	examplesRemoveCmd = &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a style example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			b, err := openExamples(cmd)
			if err != nil {
				return err
			}
			return reportRemoved(cmd, "Example", id)(b.Remove(id))
		},
	}
)

func init() {
	bankCmd.PersistentFlags().StringVar(&truthFlag, "truth", "", "truth value for added or imported statements (true/false)")
	bankListCmd.Flags().StringVar(&filterFlag, "filter", string(bank.FilterAll), "all, true or false")
	bankListCmd.Flags().StringVar(&queryFlag, "query", "", "case-insensitive substring to match")
	bankExportCmd.Flags().StringVar(&filterFlag, "filter", string(bank.FilterAll), "all, true or false")

	bankCmd.AddCommand(bankAddCmd, bankListCmd, bankRemoveCmd, bankImportCmd, bankExportCmd)
	materialsCmd.AddCommand(materialsAddCmd, materialsListCmd, materialsRemoveCmd)
	examplesCmd.AddCommand(examplesAddCmd, examplesImportCmd, examplesListCmd, examplesRemoveCmd)
	rootCmd.AddCommand(bankCmd, materialsCmd, examplesCmd)
}

func openStatements(cmd *cobra.Command) (*bank.StatementBank, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return bank.LoadStatements(cfg.Data.StatementBank)
}

func openExamples(cmd *cobra.Command) (*bank.ExampleBank, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return bank.LoadExamples(cfg.Data.Examples)
}

func parseTruthFlag(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --truth %q", s)
	}
	return &v, nil
}

func reportRemoved(cmd *cobra.Command, what string, id int) func(bool, error) error {
	return func(removed bool, err error) error {
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%s %d not found", what, id)
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("%s %d removed.", what, id)))
		return nil
	}
}

