package jira

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/robby/stevenson/internal/domain"
)

const dateLayout = "2006-01-02"

// CreateVersion creates a fix version and returns it with its ID filled in.
// Jira does not deduplicate by name, so every call creates a new version.
func (c *Client) CreateVersion(ctx context.Context, record domain.VersionRecord) (domain.VersionRecord, error) {
	payload := map[string]interface{}{
		"name":        record.Name,
		"description": record.Description,
		"projectId":   record.ProjectID,
		"released":    false,
	}
	if !record.StartDate.IsZero() {
		payload["startDate"] = record.StartDate.Format(dateLayout)
	}

	var resp struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		ProjectID int    `json:"projectId"`
	}
	if err := c.makeRequest(ctx, http.MethodPost, "/version", payload, &resp); err != nil {
		return domain.VersionRecord{}, errors.Wrapf(err, "failed to create version %q in project %d", record.Name, record.ProjectID)
	}

	created := record
	created.ID = resp.ID
	if resp.Name != "" {
		created.Name = resp.Name
	}
	return created, nil
}
