/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/admin"
	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/internal/logging"
	"github.com/reclutas/apiserver/internal/services"
	"github.com/reclutas/apiserver/internal/storage"
)

const adminPasswordEnv = "RECLUTAS_ADMIN_PASSWORD"

var readPassword = term.ReadPassword

var (
	adminAs        string
	createName     string
	createAdmin    bool
	createPassword string
	logsCount      int
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer backend user accounts",
	Long: `Administrative commands run as an administrator given with --as.
The password is read from ` + adminPasswordEnv + ` or prompted for.
While no account exists, "users create" needs no --as and creates an administrator.`,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage backend user accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, false, func(ctx context.Context, c *admin.Console) error {
			return c.ListUsers(ctx)
		})
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.LoadConfig()
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		console := newConsole(cfg, conn, nil, cmd.OutOrStdout())
		bootstrap, err := console.NeedsBootstrap(ctx)
		if err != nil {
			return err
		}
		if !bootstrap {
			if err := authenticate(ctx, cmd, console); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), "no accounts yet, creating the first administrator")
		}

		password := createPassword
		if password == "" {
			if password, err = promptNewPassword(cmd); err != nil {
				return err
			}
		}
		_, err = console.CreateUser(ctx, services.NewAccount{
			Email:    args[0],
			Name:     createName,
			Password: password,
			Admin:    createAdmin,
		})
		return err
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <email>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, false, func(ctx context.Context, c *admin.Console) error {
			return c.DeleteUser(ctx, args[0])
		})
	},
}

var usersPasswdCmd = &cobra.Command{
	Use:   "passwd <email>",
	Short: "Set an account's password and end its sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, false, func(ctx context.Context, c *admin.Console) error {
			password, err := promptNewPassword(cmd)
			if err != nil {
				return err
			}
			return c.SetPassword(ctx, args[0], password)
		})
	},
}

var usersResetCmd = &cobra.Command{
	Use:   "reset-password <email>",
	Short: "Generate a new password and clear any lockout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, false, func(ctx context.Context, c *admin.Console) error {
			return c.ResetPassword(ctx, args[0])
		})
	},
}

var usersActivateCmd = &cobra.Command{
	Use:   "activate <email>",
	Short: "Allow an account to log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, false, func(ctx context.Context, c *admin.Console) error {
			return c.SetActive(ctx, args[0], true)
		})
	},
}

var usersDeactivateCmd = &cobra.Command{
	Use:   "deactivate <email>",
	Short: "Disable an account and end its sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, false, func(ctx context.Context, c *admin.Console) error {
			return c.SetActive(ctx, args[0], false)
		})
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, false, func(ctx context.Context, c *admin.Console) error {
			return c.Logs(ctx, logsCount)
		})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a JSON snapshot of the database to object storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, true, func(ctx context.Context, c *admin.Console) error {
			return c.Backup(ctx)
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd, true, func(ctx context.Context, c *admin.Console) error {
			return c.ListBackups(ctx)
		})
	},
}

func newConsole(cfg config.Config, conn *sql.DB, objects *storage.Storage, out io.Writer) *admin.Console {
	logger := logging.New(cfg.Log, os.Stderr)
	database := db.New(conn)
	repos := services.StoreRepositories()

	credentials := services.NewCredentialService(database, repos, cfg.Security)
	sessions := services.NewSessionService(database, repos, cfg.Session.TTL)
	deps := admin.Deps{
		Accounts:    services.NewAccountService(database, repos, credentials, sessions),
		Credentials: credentials,
		Sessions:    sessions,
		Audit:       services.NewAuditService(database, repos, logger.With(slog.String("component", "admin"))),
	}
	if objects != nil {
		deps.Backups = services.NewBackupService(database, repos, objects)
	}
	return admin.NewConsole(deps, out)
}

// withConsole opens the database, authenticates the --as administrator and
// runs fn.
func withConsole(cmd *cobra.Command, backups bool, fn func(context.Context, *admin.Console) error) error {
	ctx := cmd.Context()
	cfg := config.LoadConfig()
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	var objects *storage.Storage
	if backups {
		if objects, err = storage.Open(ctx, cfg.Storage); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
	}

	console := newConsole(cfg, conn, objects, cmd.OutOrStdout())
	if err := authenticate(ctx, cmd, console); err != nil {
		return err
	}
	return fn(ctx, console)
}

func authenticate(ctx context.Context, cmd *cobra.Command, console *admin.Console) error {
	if adminAs == "" {
		return errors.New("--as <email> is required")
	}
	password, ok := os.LookupEnv(adminPasswordEnv)
	if !ok {
		var err error
		if password, err = promptPassword(cmd, fmt.Sprintf("Password for %s: ", adminAs)); err != nil {
			return err
		}
	}
	return console.Authenticate(ctx, adminAs, password)
}

func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	raw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func promptNewPassword(cmd *cobra.Command) (string, error) {
	first, err := promptPassword(cmd, "New password: ")
	if err != nil {
		return "", err
	}
	second, err := promptPassword(cmd, "Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func init() {
	adminCmd.PersistentFlags().StringVar(&adminAs, "as", "", "email of the administrator running the command")

	usersCreateCmd.Flags().StringVar(&createName, "name", "", "display name")
	usersCreateCmd.Flags().BoolVar(&createAdmin, "admin", false, "grant administrator access")
	usersCreateCmd.Flags().StringVar(&createPassword, "password", "", "initial password (prompted when empty)")
	logsCmd.Flags().IntVarP(&logsCount, "count", "n", 50, "number of entries to show")

	usersCmd.AddCommand(usersListCmd, usersCreateCmd, usersDeleteCmd, usersPasswdCmd,
		usersResetCmd, usersActivateCmd, usersDeactivateCmd)
	backupCmd.AddCommand(backupListCmd)
	adminCmd.AddCommand(usersCmd, logsCmd, backupCmd)
	rootCmd.AddCommand(adminCmd)
}
