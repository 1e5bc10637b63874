package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darasahq/darasa/core/account"
	"github.com/darasahq/darasa/storage/database/inmem"
)

func setup(t *testing.T) *commandLine {
	t.Helper()
	return &commandLine{
		db:       &sqlx.DB{},
		acctRepo: inmem.NewAccountRepository(inmem.NewDB()),
	}
}

func createAccount(t *testing.T, repo account.Repository, name, email, pwd, role string) account.Account {
	t.Helper()
	now := time.Now().UTC()
	acct := account.Account{Name: name, Email: email, Role: role, CreatedAt: now, UpdatedAt: now}
	if err := acct.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	acct, err := repo.CreateAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acct
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version", "fix": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	acct := createAccount(t, cli.acctRepo, "Mrs T", "awe@test.cd", "0ld-S3kr3t!", account.RoleTeacher)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: extra{pwd: "lol"}, wantErr: account.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", acct.Email}, extra: extra{pwd: "n3w-S3kr3t!"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := cli.acctRepo.GetAccount(context.Background(), account.GetFilter{ID: acct.ID})
				if err != nil {
					t.Fatalf("GetAccount() failed: %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, acct.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addAccount(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("S3kr3t!Pass"), nil }

	t.Run("unknown role", func(t *testing.T) {
		err := cli.run([]string{"admin", "addaccount", "-name", "X", "-email", "x@test.cd", "-role", "principal"})
		if err == nil || err.Error() != `unknown role "principal"` {
			t.Errorf("cli.run() error = %v; want unknown role", err)
		}
	})

	t.Run("create student", func(t *testing.T) {
		if err := cli.run([]string{"admin", "addaccount", "-name", "Asha", "-email", "asha@test.cd", "-role", "student"}); err != nil {
			t.Fatalf("cli.run() failed: %v", err)
		}
		acct, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{Email: "asha@test.cd"})
		if err != nil {
			t.Fatalf("GetAccount() failed: %v", err)
		}
		if acct.Role != account.RoleStudent {
			t.Errorf("role = %q; want %q", acct.Role, account.RoleStudent)
		}
		if len(acct.StudentCode) != account.DefaultCodeLength {
			t.Errorf("student code = %q; want length %d", acct.StudentCode, account.DefaultCodeLength)
		}
	})

	t.Run("existing account keeps its role", func(t *testing.T) {
		orig, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{Email: "asha@test.cd"})
		if err != nil {
			t.Fatalf("GetAccount() failed: %v", err)
		}

		readPasswordFunc = func(fd int) ([]byte, error) { return []byte("An0ther-S3kr3t!"), nil }
		if err = cli.run([]string{"admin", "addaccount", "-name", "Asha M", "-email", "asha@test.cd", "-role", "teacher"}); err != nil {
			t.Fatalf("cli.run() failed: %v", err)
		}

		refreshed, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{Email: "asha@test.cd"})
		if err != nil {
			t.Fatalf("GetAccount() failed: %v", err)
		}
		if refreshed.Role != account.RoleStudent {
			t.Errorf("role = %q; want %q (unchanged)", refreshed.Role, account.RoleStudent)
		}
		if refreshed.Name != "Asha M" {
			t.Errorf("name = %q; want %q", refreshed.Name, "Asha M")
		}
		if bytes.Equal(refreshed.PasswordHash, orig.PasswordHash) {
			t.Error("failed to update new password")
		}
	})
}
