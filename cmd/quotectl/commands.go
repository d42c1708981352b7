package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotesync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotesync/internal/domain"
	"github.com/jsamuelsen/quotesync/internal/platform/config"
)

const defaultExportFile = "quotes.json"

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:     "quotectl",
		Short:   "Manage the local quote collection",
		Version: Version,
		Long: `quotectl reads and edits the quote collection kept by the quotesync
service, and syncs it with the remote quote source.

It uses the service configuration: configs/base.yaml, configs/{profile}.yaml
and APP_* environment variables.`,
		PersistentPreRunE: c.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&c.configDir, "config-dir", config.DefaultConfigDir, "directory holding base.yaml and profile files")
	root.PersistentFlags().StringVar(&c.profile, "profile", "local", "configuration profile")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newListCommand(c),
		newRandomCommand(c),
		newAddCommand(c),
		newCategoriesCommand(c),
		newFilterCommand(c),
		newImportCommand(c),
		newExportCommand(c),
		newSyncCommand(c),
		newPushCommand(c),
	)

	return root
}

func newListCommand(c *cli) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quotes, optionally of one category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			quotes := c.svc.Filter(cmd.Context(), category)

			if c.jsonOutput {
				return c.printJSON(dto.NewQuoteListResponse(quotes))
			}

			for _, q := range quotes {
				c.printQuote(q)
			}

			c.printf("%d quotes\n", len(quotes))

			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", domain.AllCategories, "category to list")

	return cmd
}

func newRandomCommand(c *cli) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Show a random quote",
		Long:  "Show a random quote of --category, or of the last selected filter when none is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if category == "" {
				category = c.svc.LastFilter(ctx)
			}

			q, err := c.svc.Random(ctx, category)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.printJSON(dto.NewQuoteResponse(q))
			}

			c.printQuote(q)

			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "category to pick from")

	return cmd
}

func newAddCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add TEXT AUTHOR CATEGORY",
		Short: "Add a local quote",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := c.svc.AddLocal(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.printJSON(dto.NewQuoteResponse(q))
			}

			c.printf("added: ")
			c.printQuote(q)

			return nil
		},
	}
}

func newCategoriesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories, \"all\" first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories := c.svc.Categories(cmd.Context())

			if c.jsonOutput {
				return c.printJSON(dto.CategoriesResponse{Categories: categories})
			}

			for _, name := range categories {
				c.printf("%s\n", name)
			}

			return nil
		},
	}
}

func newFilterCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "filter [CATEGORY]",
		Short: "Show or select the category filter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if len(args) == 1 {
				if err := c.svc.SelectFilter(ctx, args[0]); err != nil {
					return err
				}
			}

			filter := c.svc.LastFilter(ctx)

			if c.jsonOutput {
				return c.printJSON(dto.FilterResponse{Category: filter})
			}

			c.printf("%s\n", filter)

			return nil
		},
	}
}

func newImportCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Append the quotes of a JSON export; - reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)

			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}

			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			n, err := c.svc.Import(cmd.Context(), data)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.printJSON(dto.ImportResponse{Imported: n})
			}

			c.printf("imported %d quotes\n", n)

			return nil
		},
	}
}

func newExportCommand(c *cli) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the collection as JSON; --out - writes to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := c.svc.Export(cmd.Context())
			if err != nil {
				return err
			}

			if out == "-" {
				_, err = c.out.Write(data)
				return err
			}

			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}

			c.printf("exported to %s\n", out)

			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", defaultExportFile, "output file")

	return cmd
}

func newSyncCommand(c *cli) *cobra.Command {
	var push bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge the remote collection into the local one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.syncer.TriggerNow(cmd.Context())
			if err != nil {
				return err
			}

			if c.jsonOutput && !push {
				return c.printJSON(dto.NewMergeReportResponse(report))
			}

			if !c.jsonOutput {
				c.printf("added %d, updated %d, unchanged %d, skipped %d\n",
					report.Added, report.Updated, report.Unchanged, report.Skipped)
			}

			if !push {
				return nil
			}

			return c.push(cmd)
		},
	}

	cmd.Flags().BoolVar(&push, "push", false, "push local quotes after merging")

	return cmd
}

func newPushCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push local quotes to the remote source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.push(cmd)
		},
	}
}

func (c *cli) push(cmd *cobra.Command) error {
	ctx, cancel := c.syncContext(cmd.Context())
	defer cancel()

	report, err := c.svc.PushPending(ctx)
	if err != nil {
		return err
	}

	if c.jsonOutput {
		return c.printJSON(dto.NewPushReportResponse(report))
	}

	c.printf("pushed %d, failed %d, skipped %d\n", report.Pushed, report.Failed, report.Skipped)

	return nil
}

func (c *cli) printQuote(q domain.Quote) {
	id := q.ID
	if id == "" {
		id = "local"
	}

	c.printf("[%s] %q - %s (%s)\n", id, q.Text, q.Author, q.Category)
}
