package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

func (cli *commandLine) print(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, string(b))
	return err
}

func (cli *commandLine) balance(tenantID, userID string) error {
	bal, err := cli.eng.Ledger.GetBalance(context.Background(), tenantID, core.CleanString(userID))
	if err != nil {
		return err
	}
	return cli.print(bal)
}

// reconcile prints the report even when the ledger drifted.
func (cli *commandLine) reconcile(tenantID, userID string) error {
	report, err := cli.eng.Ledger.Reconcile(context.Background(), tenantID, core.CleanString(userID))
	if report.Transactions > 0 || err == nil {
		if perr := cli.print(report); perr != nil {
			return perr
		}
	}
	return err
}

func (cli *commandLine) fundDAO(tenantID, currency string, amount int64, memo string) error {
	c := ledger.Currency(core.CleanString(currency))
	txn, err := cli.eng.Governance.FundTreasury(context.Background(), tenantID, c, amount, memo)
	if err != nil {
		return err
	}
	return cli.print(txn)
}

func (cli *commandLine) accrueYield(tenantID string) error {
	n, err := cli.eng.Staking.AccrueDaily(context.Background(), tenantID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.out, "accrued yield on %d positions\n", n)
	return err
}

func (cli *commandLine) sweep(tenantID string) error {
	rep, err := cli.eng.Sweep(context.Background(), tenantID)
	if err != nil {
		return err
	}
	return cli.print(rep)
}
