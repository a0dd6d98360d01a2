package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/blockberries/distledger/client"
	"github.com/blockberries/distledger/types"
)

const usage = `commands:
  createAccount <qualifier> <user>
  balance <qualifier> <user>
  transferTo <qualifier> <from> <to> <amount>
  activate <qualifier>
  deactivate <qualifier>
  getLedgerState <qualifier>
  gossip <qualifier>
  collisions <qualifier>
  help
  exit

`

// shell runs one command line at a time against a cluster. The user
// session, and so its causal context, lives as long as the shell.
type shell struct {
	user     *client.UserService
	admin    *client.AdminService
	replicas *types.ReplicaSet
	out      io.Writer
}

// exec runs args and reports whether the shell should exit
func (sh *shell) exec(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return false
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "exit":
		return true
	case "help":
		fmt.Fprint(sh.out, usage)
		return false
	}

	arity := map[string]int{
		"createAccount":  2,
		"balance":        2,
		"transferTo":     4,
		"activate":       1,
		"deactivate":     1,
		"getLedgerState": 1,
		"gossip":         1,
		"collisions":     1,
	}
	want, ok := arity[cmd]
	if !ok || len(args) != want {
		fmt.Fprint(sh.out, "Usage:\n"+usage)
		return false
	}
	qualifier := args[0]
	if !sh.replicas.Has(qualifier) {
		fmt.Fprintf(sh.out, "unknown server %q\n\n", qualifier)
		return false
	}

	switch cmd {
	case "createAccount":
		sh.result(sh.user.CreateAccount(ctx, qualifier, args[1]))
	case "balance":
		value, err := sh.user.Balance(ctx, qualifier, args[1])
		sh.result(err, strconv.FormatInt(value, 10))
	case "transferTo":
		amount, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			fmt.Fprintf(sh.out, "invalid amount %q\n\n", args[3])
			return false
		}
		sh.result(sh.user.Transfer(ctx, qualifier, args[1], args[2], amount))
	case "activate":
		sh.result(sh.admin.Activate(ctx, qualifier))
	case "deactivate":
		sh.result(sh.admin.Deactivate(ctx, qualifier))
	case "gossip":
		_, err := sh.admin.Gossip(ctx, qualifier)
		sh.result(err)
	case "getLedgerState":
		ops, err := sh.admin.GetLedgerState(ctx, qualifier)
		if err != nil {
			sh.result(err)
			return false
		}
		fmt.Fprintln(sh.out, client.OK(client.RenderLedger(ops)))
	case "collisions":
		collisions, err := sh.admin.Collisions(ctx, qualifier)
		if err != nil {
			sh.result(err)
			return false
		}
		lines := make([]string, 0, len(collisions))
		for _, c := range collisions {
			lines = append(lines, fmt.Sprintf("%s %s: %s | %s", c.ID, c.KindName, c.Existing, c.Incoming))
		}
		fmt.Fprintln(sh.out, client.OK(lines...))
	}
	return false
}

// result prints OK and lines followed by a blank line, or the error
func (sh *shell) result(err error, lines ...string) {
	if err != nil {
		fmt.Fprintln(sh.out, err.Error())
		return
	}
	fmt.Fprintln(sh.out, client.OK(lines...))
}
