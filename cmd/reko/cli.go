package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"reko/internal/archive"
	"reko/internal/config"
	"reko/internal/logging"
	"reko/internal/rulesync"
	"reko/internal/search"
	"reko/internal/server"
)

// Version is the CLI version reported by `reko version`.
const Version = "0.3.0"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY checks if the current environment has a TTY available
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// CLI holds shared state for all subcommands. Stores are built lazily on
// first use so `reko version` never touches the filesystem.
type CLI struct {
	configPath string
	dataDir    string

	cfg   *config.Config
	store *archive.Store
	rules *archive.RuleStore
}

func (c *CLI) initialize() error {
	if c.cfg != nil {
		return nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	c.cfg = cfg
	return nil
}

func (c *CLI) openStore() (*archive.Store, error) {
	if err := c.initialize(); err != nil {
		return nil, err
	}
	if c.store == nil {
		store, err := archive.NewStore(c.cfg)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.rules = archive.NewRuleStore(c.cfg, store.Root())
	}
	return c.store, nil
}

func (c *CLI) openRules() (*archive.RuleStore, error) {
	if _, err := c.openStore(); err != nil {
		return nil, err
	}
	return c.rules, nil
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	cli := &CLI{}

	rootCmd := &cobra.Command{
		Use:   "reko",
		Short: "File-backed knowledge archives for AI coding agents",
		Long: fmt.Sprintf(`%s

reko keeps project knowledge in plain markdown under archives/, searchable
without an index and shared between humans and coding agents.

%s
  reko serve                                   # Run the HTTP API
  reko add frontend setup --content "..."      # Record a note
  reko search "npm install" --format text      # Query the archives
  reko rule-add commit-style --content "..."   # Update a shared rule
  reko generate --output .cursorrules          # Build the agent rules file`,
			bold("reko "+Version), bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cli.configPath, "config", "", "Path to reko-config.json")
	rootCmd.PersistentFlags().StringVar(&cli.dataDir, "data-dir", "", "Override the archives data directory")

	rootCmd.AddCommand(newServeCommand(cli))
	rootCmd.AddCommand(newAddCommand(cli))
	rootCmd.AddCommand(newSearchCommand(cli))
	rootCmd.AddCommand(newRulesCommand(cli))
	rootCmd.AddCommand(newRuleAddCommand(cli))
	rootCmd.AddCommand(newProjectsCommand(cli))
	rootCmd.AddCommand(newSectionsCommand(cli))
	rootCmd.AddCommand(newGenerateCommand(cli))
	rootCmd.AddCommand(newVersionCommand())

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return err
	})
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		_ = logging.GetLogger().Close()
	}

	wrapRunE(rootCmd)
	return rootCmd
}

// wrapRunE decorates every subcommand so handled errors print in red before
// propagating to main for the exit code.
func wrapRunE(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		if cmd.RunE == nil {
			continue
		}
		inner := cmd.RunE
		cmd.RunE = func(c *cobra.Command, args []string) error {
			if err := inner(c, args); err != nil {
				fmt.Fprintln(os.Stderr, red("Error: "+err.Error()))
				return err
			}
			return nil
		}
	}
}

func newServeCommand(cli *CLI) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the archives HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.initialize(); err != nil {
				return err
			}
			if host != "" {
				cli.cfg.Server.Host = host
			}
			if port != 0 {
				cli.cfg.Server.Port = port
			}
			srv, err := server.New(cli.cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			fmt.Printf("%s http://%s:%d\n", green("Serving archives on"), cli.cfg.Server.Host, cli.cfg.Server.Port)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Bind address")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port")
	return cmd
}

func newAddCommand(cli *CLI) *cobra.Command {
	var content, file, title string
	cmd := &cobra.Command{
		Use:   "add <project> <section>",
		Short: "Add an entry to the archives",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := resolveContent(content, file)
			if err != nil {
				return err
			}
			store, err := cli.openStore()
			if err != nil {
				return err
			}
			path, err := store.Add(args[0], args[1], body, title)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", green("Added entry to"), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "Entry content")
	cmd.Flags().StringVar(&file, "file", "", "Read entry content from a file")
	cmd.Flags().StringVar(&title, "title", "", "Entry title")
	return cmd
}

func newSearchCommand(cli *CLI) *cobra.Command {
	var project, format string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.openStore()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			results, err := search.NewEngine(store).Search(query, project)
			if err != nil {
				return err
			}
			if format == "json" {
				if results == nil {
					results = []search.Result{}
				}
				out, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Print(search.RenderText(query, results))
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Limit the search to one project")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func newRulesCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List custom rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := cli.openRules()
			if err != nil {
				return err
			}
			list, err := rules.ListRules()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println(yellow("No custom rules defined."))
				return nil
			}
			for _, rule := range list {
				fmt.Printf("%s\n%s\n\n", bold(cyan("## "+rule.Name)), rule.Content)
			}
			return nil
		},
	}
}

func newRuleAddCommand(cli *CLI) *cobra.Command {
	var content, file string
	cmd := &cobra.Command{
		Use:   "rule-add <name>",
		Short: "Add or update a custom rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := resolveContent(content, file)
			if err != nil {
				return err
			}
			rules, err := cli.openRules()
			if err != nil {
				return err
			}
			path, err := rules.UpsertRule(args[0], body)
			if err != nil {
				return err
			}
			fmt.Printf("%s %q %s %s\n", green("Rule"), args[0], green("updated in"), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "Rule content")
	cmd.Flags().StringVar(&file, "file", "", "Read rule content from a file")
	return cmd
}

func newProjectsCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.openStore()
			if err != nil {
				return err
			}
			projects, err := store.ListProjects()
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func newSectionsCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "sections <project>",
		Short: "List sections of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cli.openStore()
			if err != nil {
				return err
			}
			sections, err := store.ListSections(args[0])
			if err != nil {
				return err
			}
			for _, s := range sections {
				fmt.Println(s)
			}
			return nil
		},
	}
}

func newGenerateCommand(cli *CLI) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the combined cursorrules file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := cli.openRules()
			if err != nil {
				return err
			}
			gen := rulesync.NewGenerator(cli.cfg, rules)
			path, err := gen.Generate(cmd.Context(), output)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", green("Generated"), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Output path (default .cursorrules)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("reko " + Version)
		},
	}
}

// resolveContent picks the entry body from --content, --file, or piped
// stdin, in that order.
func resolveContent(content, file string) (string, error) {
	if content != "" {
		return content, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	if !isTTY() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if len(data) > 0 {
			return string(data), nil
		}
	}
	return "", fmt.Errorf("no content provided: use --content, --file, or pipe via stdin")
}
