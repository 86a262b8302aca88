package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/jira"
)

func newTicketsCmd(a *app) *cobra.Command {
	var (
		jql     string
		version string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Search Jira tickets, e.g. the ones linked to a fix version",
		Example: `  stevenson tickets --version "app 1.2.0"
  stevenson tickets --jql 'project = ABC AND status = "In Progress"'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jql == "" && version == "" {
				return domain.MissingParameter("jql or version")
			}
			if jql == "" {
				jql = jira.FixVersionJQL(version)
			}

			client, err := a.jiraClient()
			if err != nil {
				return err
			}
			defer client.Close()

			issues, err := client.Search(cmd.Context(), jql, limit)
			if err != nil {
				return err
			}
			for _, issue := range issues {
				fmt.Printf("%-12s %-14s %s\n", issue.Key, issue.Status, issue.Summary)
			}
			fmt.Printf("\n%d ticket(s)\n", len(issues))
			return nil
		},
	}
	cmd.Flags().StringVar(&jql, "jql", "", "JQL query")
	cmd.Flags().StringVar(&version, "version", "", "Fix version name; shorthand for a fixVersion query")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of tickets")
	return cmd
}
