// Package notion pushes workbench result grids into a Notion database.
package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the Notion API operations used by the exporter.
type Client interface {
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// apiClient wraps the notionapi client.
type apiClient struct {
	c *notionapi.Client
}

// NewClient creates a Notion API client.
func NewClient(token string) Client {
	return &apiClient{c: notionapi.NewClient(notionapi.Token(token))}
}

func (a *apiClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	page, err := a.c.Page.Create(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "notion: create page")
	}
	return page, nil
}

// pageInterval paces page creation at 3 req/s, Notion's rate limit.
const pageInterval = 334 * time.Millisecond

// ExportGrid creates one page per data row in the target database. The
// first column becomes the title property; every other column is
// rich_text, with empty values skipped. Returns the number of pages
// created.
func ExportGrid(ctx context.Context, c Client, dbID string, header []string, rows [][]string) (int, error) {
	if len(header) == 0 {
		return 0, eris.New("notion: empty header")
	}

	ticker := time.NewTicker(pageInterval)
	defer ticker.Stop()

	created := 0
	for _, row := range rows {
		select {
		case <-ctx.Done():
			return created, eris.Wrap(ctx.Err(), "notion: export cancelled")
		case <-ticker.C:
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: rowProperties(header, row),
		}
		if _, err := c.CreatePage(ctx, req); err != nil {
			return created, eris.Wrap(err, "notion: create page for row")
		}
		created++
	}

	zap.L().Info("notion: export complete",
		zap.String("database_id", dbID),
		zap.Int("pages", created),
	)
	return created, nil
}

// rowProperties converts one grid row to Notion page properties.
func rowProperties(header []string, row []string) notionapi.Properties {
	props := make(notionapi.Properties, len(header))
	for i, h := range header {
		v := ""
		if i < len(row) {
			v = row[i]
		}
		if i == 0 {
			props[h] = notionapi.TitleProperty{
				Type: notionapi.PropertyTypeTitle,
				Title: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
				},
			}
			continue
		}
		if v == "" {
			continue
		}
		props[h] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
			},
		}
	}
	return props
}
