package root

import (
	poolcmd "github.com/vendapro/vendapro-saas/apps/cli/cmd/pool"
	tenantcmd "github.com/vendapro/vendapro-saas/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(poolcmd.Command())
}
