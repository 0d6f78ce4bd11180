// Package bigquery implements the transaction and rule repositories on
// BigQuery tables.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	transactionsTable = "transactions"
	rulesTable        = "rules"
)

// Client holds a shared BigQuery client and the dataset the repositories
// read and write.
type Client struct {
	bq        *bigquery.Client
	projectID string
	datasetID string
}

// NewClient creates a BigQuery client for projectID.
func NewClient(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewClient: project ID is required")
	}
	if datasetID == "" {
		datasetID = "ledger"
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating client: %w", err)
	}
	return &Client{bq: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (c *Client) Close() error {
	if c.bq != nil {
		return c.bq.Close()
	}
	return nil
}

// table returns the fully qualified, backquoted table name.
func (c *Client) table(name string) string {
	return tableRef(c.projectID, c.datasetID, name)
}

func tableRef(project, dataset, name string) string {
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, name)
}

// exec runs a DML statement and returns the number of affected rows.
func (c *Client) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := c.bq.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// readAll runs a query and decodes every row with newRow.
func readAll[T any](ctx context.Context, c *Client, sql string, params []bigquery.QueryParameter) ([]T, error) {
	q := c.bq.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []T
	for {
		var r T
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}
