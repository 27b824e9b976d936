package tenantcmd

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vendapro/vendapro-saas/apps/cli/adminapi"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (list, invalidate pools)",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(invalidateCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active tenants known to the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := adminapi.ClientFromFlags(cmd)
			if err != nil {
				return err
			}

			var payload struct {
				Items []struct {
					ID          string `json:"id"`
					TaxID       string `json:"taxId"`
					DisplayName string `json:"displayName"`
					SchemaName  string `json:"schemaName"`
					Status      string `json:"status"`
				} `json:"items"`
			}
			if err := client.Call(cmd.Context(), http.MethodGet, "/v1/admin/tenants", &payload); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT ID\tTAX ID\tNAME\tSCHEMA\tSTATUS")
			for _, t := range payload.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.TaxID, t.DisplayName, t.SchemaName, t.Status)
			}
			return w.Flush()
		},
	}
}

func invalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <tenant-id>",
		Short: "Drop a tenant's cached pool so the next login reconnects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id %q: %w", args[0], err)
			}

			client, err := adminapi.ClientFromFlags(cmd)
			if err != nil {
				return err
			}

			path := fmt.Sprintf("/v1/admin/tenants/%s/invalidate", id)
			if err := client.Call(cmd.Context(), http.MethodPost, path, nil); err != nil {
				return err
			}
			fmt.Printf("pool for tenant %s invalidated\n", id)
			return nil
		},
	}
}
