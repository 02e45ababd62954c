package root

import (
	synccmd "github.com/cw-konishi/copilot-metric-saver/apps/cli/cmd/sync"
	tenantcmd "github.com/cw-konishi/copilot-metric-saver/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(synccmd.Command())
}
