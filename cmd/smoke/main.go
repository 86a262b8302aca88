// Command smoke exercises the GitHub source against a live repository and
// prints what a release run would see. It never writes to Jira.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/robby/stevenson/internal/changelog"
	"github.com/robby/stevenson/internal/domain"
	"github.com/robby/stevenson/internal/gh"
)

func main() {
	repo := flag.String("repo", "", "owner/name")
	branch := flag.String("branch", "", "release branch, e.g. release/app/1.2.0")
	app := flag.String("app", "", "app name")
	flag.Parse()

	client, err := gh.New()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	tags, err := client.ListReleaseTags(ctx, *repo, 10)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Tags (%d):\n", len(tags))
	for _, t := range tags {
		fmt.Printf("  %s -> %s\n", t.Name, t.Commit)
	}

	release, err := domain.NewRelease(*repo, *branch, *app)
	if err != nil {
		log.Fatal(err)
	}

	from := ""
	if len(tags) > 0 {
		from = tags[0].Name
	}
	fmt.Printf("\nCommits %s..%s:\n", from, release.BranchName)
	commits, err := client.ListCommits(ctx, *repo, from, release.BranchName)
	if err != nil {
		log.Fatal(err)
	}

	sections := changelog.Group(domain.Messages(commits), release, changelog.SDKOptions{})
	fmt.Printf("\nGrouped commits (%d sections):\n", len(sections))
	for _, s := range sections {
		fmt.Printf("  %s: %d entries, tickets %v\n", changelog.Heading(s), len(s.Entries), changelog.Tickets(s))
	}
}
