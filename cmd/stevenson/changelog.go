package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robby/stevenson/internal/changelog"
	"github.com/robby/stevenson/internal/document"
)

func newChangelogCmd(a *app) *cobra.Command {
	f := &rangeFlags{}
	var asJSON bool
	var browseURL string

	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Preview the grouped changelog without touching Jira",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := a.openSource(f)
			if err != nil {
				return err
			}
			release, commits, err := a.resolveRelease(ctx, src, f)
			if err != nil {
				return err
			}

			if browseURL == "" && a.cfg.Jira.BaseURL != "" {
				browseURL = a.cfg.Jira.BaseURL + "/browse"
			}
			doc := document.Render(changelog.Group(commits, release, a.sdkOptions()), document.Options{BrowseURL: browseURL})

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}
			fmt.Printf("%s (%d commits)\n\n", release.VersionName(), len(commits))
			fmt.Print(document.PlainText(doc))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the Atlassian document JSON")
	cmd.Flags().StringVar(&browseURL, "browse-url", "", "Ticket link prefix (default <jira.base_url>/browse)")
	return cmd
}
