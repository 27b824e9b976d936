package poolcmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/vendapro/vendapro-saas/apps/cli/adminapi"
)

// Command groups pool cache helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Connection pool cache utilities",
	}

	cmd.AddCommand(warmCommand())
	return cmd
}

func warmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Open pools for every active tenant ahead of traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := adminapi.ClientFromFlags(cmd)
			if err != nil {
				return err
			}

			var result struct {
				Warmed int      `json:"warmed"`
				Failed []string `json:"failed"`
			}
			if err := client.Call(cmd.Context(), http.MethodPost, "/v1/admin/pools/warm", &result); err != nil {
				return err
			}

			fmt.Printf("warmed %d pool(s)\n", result.Warmed)
			for _, failure := range result.Failed {
				fmt.Printf("failed: %s\n", failure)
			}
			return nil
		},
	}
}
