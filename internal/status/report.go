package status

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// PrintReport renders profit totals as two tables.
func PrintReport(out io.Writer, p Profits) {
	fmt.Fprintln(out, "\nAll time")
	printProfitTable(out, p.AllTime)
	fmt.Fprintln(out, "\nLast 24h")
	printProfitTable(out, p.Last24h)
}

func printProfitTable(out io.Writer, lines []ProfitLine) {
	if len(lines) == 0 {
		fmt.Fprintln(out, "  (no attempts)")
		return
	}
	table := tablewriter.NewWriter(out)
	table.Header("Engine", "Token", "Attempts", "OK", "Failed", "Volume", "Profit")
	for _, l := range lines {
		token := l.Token
		if token == "" {
			token = "-"
		}
		table.Append(
			l.Engine,
			token,
			strconv.Itoa(l.Attempts),
			strconv.Itoa(l.Succeeded),
			strconv.Itoa(l.Failed),
			l.Volume,
			l.Profit,
		)
	}
	table.Render()
}

// PrintWallets renders wallet balances and queue depth.
func PrintWallets(out io.Writer, wallets []WalletView) {
	table := tablewriter.NewWriter(out)
	table.Header("Role", "Address", "RBTC", "Pending")
	for _, w := range wallets {
		bal := w.Balance
		if bal == "" {
			bal = "unavailable"
		}
		table.Append(string(w.Role), w.Address, bal, strconv.Itoa(w.Pending))
	}
	table.Render()
}
