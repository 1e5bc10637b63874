package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/account"
)

// addAccount creates an account, or refreshes the name and password of an
// existing one. The role of an existing account is never changed.
func (cli *commandLine) addAccount(name, email, role, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	role = core.CleanString(role, true /* lower */)

	var known bool
	for _, r := range account.AllRoles {
		if r == role {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown role %q", role)
	}

	now := time.Now().UTC()

	acct, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) != account.ErrNotFound {
			return err
		}

		acct = account.Account{
			Name:      name,
			Email:     email,
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if role == account.RoleStudent {
			acct.StudentCode, err = account.GenerateCode(cli.studentCodeExists(ctx), account.DefaultCodeLength)
			if err != nil {
				return err
			}
		}
		if err = acct.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.acctRepo.CreateAccount(ctx, acct)
		return err
	}

	acct.Name = name
	acct.UpdatedAt = now
	if err = acct.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.acctRepo.UpdateAccount(ctx, acct)
	return err
}

func (cli *commandLine) studentCodeExists(ctx context.Context) func(code string) (bool, error) {
	return func(code string) (bool, error) {
		_, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{StudentCode: code})
		if err == nil {
			return true, nil
		}
		if errors.Cause(err) == account.ErrNotFound {
			return false, nil
		}
		return false, err
	}
}
