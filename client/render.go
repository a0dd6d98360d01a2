package client

import (
	"fmt"
	"strings"

	"github.com/blockberries/distledger/types"
)

// RenderLedger renders ops as the ledgerState text block printed by the
// admin CLI
func RenderLedger(ops []*types.Operation) string {
	var sb strings.Builder
	sb.WriteString("ledgerState {\n")
	for _, op := range ops {
		sb.WriteString("  ledger {\n")
		fmt.Fprintf(&sb, "    type: %s\n", op.Type)
		fmt.Fprintf(&sb, "    userId: %q\n", op.Account)
		if op.Type == types.OpTransfer {
			fmt.Fprintf(&sb, "    destUserId: %q\n", op.Destination)
			fmt.Fprintf(&sb, "    amount: %d\n", op.Amount)
		}
		sb.WriteString("  }\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}

// OK formats a successful command result; lines follow the OK marker
func OK(lines ...string) string {
	var sb strings.Builder
	sb.WriteString("OK\n")
	for _, l := range lines {
		sb.WriteString(l)
		if !strings.HasSuffix(l, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
