package main

import (
	"context"
	"time"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/account"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()

	acct, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if err = acct.SetPassword(pwd); err != nil {
		return err
	}
	acct.UpdatedAt = time.Now().UTC()
	if _, err = cli.acctRepo.UpdateAccount(ctx, acct); err != nil {
		return err
	}
	return nil
}
