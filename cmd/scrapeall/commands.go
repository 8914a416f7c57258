package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/scrapeall/scrapeall"
)

var (
	scrapeProject   string
	scrapeProjectID string
	scrapeSelector  string
	scrapeFormat    string

	fillIndex  int
	fillValues map[string]string
	fillSubmit bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Scrape and analyze one URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrape,
}

var formsCmd = &cobra.Command{
	Use:   "forms <url>",
	Short: "List the forms of a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runForms,
}

var fillCmd = &cobra.Command{
	Use:   "fill <projectID> <url>",
	Short: "Fill a form of a page in a browser and record the attempt",
	Example: `  scrapeall forms fill 0195... https://example.com/contact \
    --set email=ada@example.com --set message="Hello" --submit`,
	Args: cobra.ExactArgs(2),
	RunE: runFill,
}

var chatCmd = &cobra.Command{
	Use:   "chat <projectID> <message>",
	Short: "Ask a question about a project's scraped content",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runChat,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeProject, "project", "p", "", "create (or reuse) a project with this name")
	scrapeCmd.Flags().StringVar(&scrapeProjectID, "project-id", "", "add the result to an existing project")
	scrapeCmd.Flags().StringVarP(&scrapeSelector, "selector", "s", "", "CSS selector restricting extraction")
	scrapeCmd.Flags().StringVarP(&scrapeFormat, "format", "f", "narrative", "output: narrative or json")

	fillCmd.Flags().IntVarP(&fillIndex, "form", "i", 0, "form position in the page, as listed by 'forms'")
	fillCmd.Flags().StringToStringVar(&fillValues, "set", nil, "field=value to fill, repeatable")
	fillCmd.Flags().BoolVar(&fillSubmit, "submit", false, "submit the form after filling it")
	formsCmd.AddCommand(fillCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	if scrapeFormat != "narrative" && scrapeFormat != "json" {
		return fmt.Errorf("unknown format %q", scrapeFormat)
	}
	ctx := cmd.Context()
	svc, _, err := openService(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Scrape(ctx, scrapeall.ScrapeRequest{
		URL:         args[0],
		ProjectName: scrapeProject,
		ProjectID:   scrapeProjectID,
		Selector:    scrapeSelector,
	})
	if res == nil {
		return err
	}
	if scrapeFormat == "json" {
		data, jerr := scrapeall.ExportJSON(res)
		if jerr != nil {
			return jerr
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		fmt.Fprint(cmd.OutOrStdout(), scrapeall.ExportNarrative(res))
	}
	return err
}

func runForms(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := openService(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	forms, err := svc.DetectForms(ctx, args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(forms)
}

func runFill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := openService(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	sub, err := svc.FillForm(ctx, scrapeall.FillFormRequest{
		ProjectID: args[0],
		URL:       args[1],
		FormIndex: fillIndex,
		Values:    fillValues,
		Submit:    fillSubmit,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sub)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := openService(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	resp, err := svc.Chat(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
	if len(resp.Sources) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "(%s, %d sources)\n", resp.Provider, len(resp.Sources))
	}
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, _, err := openService(ctx, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := mcp.NewServer(&mcp.Implementation{Name: "scrapeall", Version: version}, nil)
	scrapeall.RegisterMCP(srv, svc)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
