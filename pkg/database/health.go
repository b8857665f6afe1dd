package database

import "context"

// Ping verifies the database file is reachable and writable enough to
// answer a trivial query.
func (c *Client) Ping(ctx context.Context) error {
	return c.sql.PingContext(ctx)
}
