package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Client is a thin caller for the server's admin endpoints. The CLI never
// talks to tenant databases itself; everything goes through the API so the
// same resolver and pool cache serve both paths.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientFromFlags builds a Client from the root command's persistent flags.
func ClientFromFlags(cmd *cobra.Command) (*Client, error) {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return nil, err
	}
	token, err := cmd.Flags().GetString("admin-token")
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("admin token required (set --admin-token or VENDAPRO_ADMIN_TOKEN)")
	}
	return &Client{
		baseURL: strings.TrimRight(server, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Call performs an admin request and decodes the JSON response into out when
// out is non-nil. Non-2xx responses come back as errors carrying the server's
// error message.
func (c *Client) Call(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, apiError(resp))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Sprintf("%s (%s)", payload.Error, resp.Status)
	}
	return resp.Status
}
