package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

// Build vars.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func buildVersion() string {
	result := "deepchat version " + version
	if commit != "" {
		result += " (" + commit + ")"
	}
	if date != "" {
		result += " built at " + date
	}
	return result
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)
	log.SetLevel(log.WarnLevel)

	// man and completion generation must keep working even when the
	// settings file can't be loaded.
	var cfg Config
	if !isManCmd(os.Args) && !isCompletionCmd(os.Args) {
		var err error
		cfg, err = ensureConfig()
		if err != nil {
			handleError(err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd(&cfg).ExecuteContext(ctx); err != nil {
		handleError(err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "deepchat [PREFIX TERM]",
		Short:         "DeepSeek on the command line. Built for pipelines.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  deepchat "refactoring tips for this function" < main.go
  git diff | deepchat -m reasoner "write a commit message for this diff"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Debug {
				log.SetLevel(log.DebugLevel)
			}
			switch {
			case cfg.Version:
				fmt.Println(buildVersion())
				return nil
			case cfg.Settings:
				fmt.Println(cfg.SettingsPath)
				return nil
			}

			prompt := buildPrompt(args, readStdinContent())
			if prompt == "" && !cfg.List && cfg.Show == "" && cfg.Delete == "" {
				return cmd.Help() //nolint:wrapcheck
			}

			dc, err := newDeepchat(*cfg)
			if err != nil {
				return err
			}
			defer dc.Close() //nolint:errcheck
			return dc.run(cmd.Context(), cmd.OutOrStdout(), prompt)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Model, "model", "m", cfg.Model, help["model"])
	flags.StringVarP(&cfg.System, "system", "s", "", help["system"])
	flags.BoolVar(&cfg.NoStream, "no-stream", false, help["no-stream"])
	flags.StringVarP(&cfg.Continue, "continue", "c", "", help["continue"])
	flags.BoolVarP(&cfg.ContinueLast, "continue-last", "C", false, help["continue-last"])
	flags.StringVarP(&cfg.Title, "title", "t", "", help["title"])
	flags.BoolVarP(&cfg.List, "list", "l", false, help["list"])
	flags.StringVar(&cfg.Show, "show", "", help["show"])
	flags.StringVar(&cfg.Delete, "delete", "", help["delete"])
	flags.BoolVar(&cfg.NoCache, "no-cache", cfg.NoCache, help["no-cache"])
	flags.BoolVar(&cfg.Debug, "debug", false, help["debug"])
	flags.BoolVar(&cfg.Settings, "settings", false, help["settings"])
	flags.BoolVarP(&cfg.Version, "version", "v", false, help["version"])
	flags.SortFlags = false

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "man",
		Short:  "Generates manpages",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := mcobra.NewManPage(1, cmd.Root())
			if err != nil {
				return fmt.Errorf("man: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), page.Build(roff.NewDocument()))
			return err //nolint:wrapcheck
		},
	})

	return cmd
}

func isCompletionCmd(args []string) bool {
	if len(args) < 2 { //nolint:mnd
		return false
	}
	if args[1] == "__complete" {
		return true
	}
	if args[1] != "completion" || len(args) < 3 { //nolint:mnd
		return false
	}
	switch args[2] {
	case "bash", "fish", "zsh", "powershell", "help", "-h", "--help":
	default:
		return false
	}
	if len(args) == 3 { //nolint:mnd
		return true
	}
	return len(args) == 4 && (args[3] == "-h" || args[3] == "--help") //nolint:mnd
}

func isManCmd(args []string) bool {
	if len(args) < 2 || args[1] != "man" { //nolint:mnd
		return false
	}
	if len(args) == 2 { //nolint:mnd
		return true
	}
	return len(args) == 3 && (args[2] == "-h" || args[2] == "--help") //nolint:mnd
}

// buildPrompt joins the positional args with whatever came in on stdin.
func buildPrompt(args []string, stdin string) string {
	prompt := strings.Join(args, " ")
	if stdin != "" {
		prompt += "\n\n" + stdin
	}
	return strings.TrimSpace(prompt)
}

func readStdinContent() string {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return ""
	}
	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return ""
	}
	return string(content)
}

func handleError(err error) {
	var fpe flagParseError
	if errors.As(err, &fpe) {
		if fpe.Flag() == "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", fpe.ReasonFormat())
			return
		}
		fmt.Fprintf(os.Stderr, "Error: "+fpe.ReasonFormat()+"\n", fpe.Flag())
		return
	}
	var ue userError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", ue.Reason())
		fmt.Fprintf(os.Stderr, "  %s\n", ue.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
}
