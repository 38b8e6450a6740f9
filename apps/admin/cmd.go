package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/masomo-economy/core/economy"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db     *sql.DB
	engine string
	eng    *economy.Engine
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) against the embedded migrations")
	fmt.Fprintln(cli.out, "  balance -tenant TENANT -user USER - print a user's token balance")
	fmt.Fprintln(cli.out, "  reconcile -tenant TENANT -user USER - replay a user's ledger against the balance")
	fmt.Fprintln(cli.out, "  fund-dao -tenant TENANT -currency CURRENCY -amount AMOUNT [-memo MEMO] - deposit into the DAO treasury")
	fmt.Fprintln(cli.out, "  accrue-yield -tenant TENANT - accrue one day of yield on active stake positions")
	fmt.Fprintln(cli.out, "  sweep -tenant TENANT - persist expired trades, treasury votes and challenges")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	balanceCmd := flag.NewFlagSet("balance", flag.ExitOnError)
	balanceTenant := balanceCmd.String("tenant", "", "The tenant (school) id.")
	balanceUser := balanceCmd.String("user", "", "The user id.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ExitOnError)
	reconcileTenant := reconcileCmd.String("tenant", "", "The tenant (school) id.")
	reconcileUser := reconcileCmd.String("user", "", "The user id.")

	fundCmd := flag.NewFlagSet("fund-dao", flag.ExitOnError)
	fundTenant := fundCmd.String("tenant", "", "The tenant (school) id.")
	fundCurrency := fundCmd.String("currency", "", "SPARKS, GEMS or VOICE.")
	fundAmount := fundCmd.Int64("amount", 0, "The amount to deposit.")
	fundMemo := fundCmd.String("memo", "admin deposit", "A note kept with the treasury transaction.")

	accrueCmd := flag.NewFlagSet("accrue-yield", flag.ExitOnError)
	accrueTenant := accrueCmd.String("tenant", "", "The tenant (school) id.")

	sweepCmd := flag.NewFlagSet("sweep", flag.ExitOnError)
	sweepTenant := sweepCmd.String("tenant", "", "The tenant (school) id.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "balance":
		if err := balanceCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *balanceTenant == "" || *balanceUser == "" {
			balanceCmd.Usage()
			return errHelp
		}
		return cli.balance(*balanceTenant, *balanceUser)

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *reconcileTenant == "" || *reconcileUser == "" {
			reconcileCmd.Usage()
			return errHelp
		}
		return cli.reconcile(*reconcileTenant, *reconcileUser)

	case "fund-dao":
		if err := fundCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *fundTenant == "" || *fundCurrency == "" {
			fundCmd.Usage()
			return errHelp
		}
		return cli.fundDAO(*fundTenant, *fundCurrency, *fundAmount, *fundMemo)

	case "accrue-yield":
		if err := accrueCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *accrueTenant == "" {
			accrueCmd.Usage()
			return errHelp
		}
		return cli.accrueYield(*accrueTenant)

	case "sweep":
		if err := sweepCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *sweepTenant == "" {
			sweepCmd.Usage()
			return errHelp
		}
		return cli.sweep(*sweepTenant)

	default:
		cli.printUsage()
		return errHelp
	}
}
