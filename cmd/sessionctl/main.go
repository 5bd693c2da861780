package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/sessionguard/internal/app"
	"github.com/BradenHooton/sessionguard/internal/config"
	"github.com/BradenHooton/sessionguard/internal/models"
	pkgauth "github.com/BradenHooton/sessionguard/pkg/auth"
	pkglogger "github.com/BradenHooton/sessionguard/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Maintenance commands for the sessionguard auth store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newPurgeCommand())
	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newUserCommand())
	cmd.AddCommand(newKeyCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withApp loads config, opens the store and wires the services for one command run
func withApp(cmd *cobra.Command, migrate bool, fn func(ctx context.Context, core *app.App) error) error {
	ctx := commandContext(cmd)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, closer, err := pkglogger.New(pkglogger.Options{
		Level:     cfg.Log.Level,
		AuditFile: cfg.Log.AuditFile,
		Stdout:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	stores, err := app.OpenStores(ctx, &cfg.Database, migrate, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	core, err := app.New(ctx, cfg, stores, logger)
	if err != nil {
		return err
	}
	return fn(ctx, core)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(ctx context.Context, core *app.App) error {
				if core.Stores.DB == nil {
					return fmt.Errorf("migrate requires STORE_DRIVER=%s", app.DriverPostgres)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions and login attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, core *app.App) error {
				sessions, attempts, err := core.Auth.Purge(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d sessions, %d login attempts\n", sessions, attempts)
				return nil
			})
		},
	}
}

func newLoginCommand() *cobra.Command {
	var (
		identifier string
		password   string
		ip         string
		userAgent  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and print an API session token",
		Long: "Authenticate and print an API session token. Sessions are bound to the client's\n" +
			"IP address and User-Agent, so pass the values the API client will send.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SESSIONCTL_PASSWORD")
			}
			return withApp(cmd, false, func(ctx context.Context, core *app.App) error {
				state, err := core.Auth.Init(ctx, models.ClientIdentity{
					IPAddress: ip,
					UserAgent: userAgent,
					Kind:      models.ClientCLI,
				})
				if err != nil {
					return err
				}
				if err := core.Auth.Login(ctx, state, identifier, password); err != nil {
					if state.LastError != "" {
						return fmt.Errorf("%s", state.LastError)
					}
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "user:    %s (id %d)\n", state.CurrentUser.Username, state.CurrentUser.ID)
				fmt.Fprintf(out, "token:   %s\n", state.IssuedToken)
				fmt.Fprintf(out, "expires: %s\n", state.Session.SessionDate.Add(core.Config.Auth.ExpiresSession).Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&identifier, "identifier", "", "Username or email")
	cmd.Flags().StringVar(&password, "password", "", "Password (defaults to $SESSIONCTL_PASSWORD)")
	cmd.Flags().StringVar(&ip, "ip", "127.0.0.1", "Client IP address the token is bound to")
	cmd.Flags().StringVar(&userAgent, "user-agent", "sessionctl", "Client User-Agent the token is bound to")
	_ = cmd.MarkFlagRequired("identifier")
	return cmd
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User account operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newUserCreateCommand())
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var (
		username string
		email    string
		password string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an active user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SESSIONCTL_PASSWORD")
			}
			if err := pkgauth.ValidatePassword(password); err != nil {
				return err
			}
			return withApp(cmd, false, func(ctx context.Context, core *app.App) error {
				hash, err := pkgauth.HashPasswordWithCost(password, core.Config.Auth.BcryptCost)
				if err != nil {
					return err
				}
				user, err := core.Stores.Users.Create(ctx, &models.User{
					Username:     username,
					Email:        email,
					PasswordHash: hash,
					Status:       models.UserStatusActive,
					IsAdmin:      admin,
					Permissions:  models.Permissions{},
				})
				if err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (defaults to $SESSIONCTL_PASSWORD)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant administrator rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Password-reset activation key operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newKeyIssueCommand())
	cmd.AddCommand(newKeyInspectCommand())
	return cmd
}

func newKeyIssueCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Issue a reset key for a user and print the reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return withApp(cmd, false, func(ctx context.Context, core *app.App) error {
				key, err := core.Resets.IssueFor(ctx, userID, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\nlink: %s\n", key, core.Resets.ResetLink(key))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace a key issued within the resend cooldown")
	return cmd
}

func newKeyInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <key>",
		Short: "Decode a reset key and report whether it is still valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, core *app.App) error {
				key, valid, err := core.Resets.Inspect(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "user id:   %d\n", key.UserID)
				fmt.Fprintf(out, "issued at: %s\n", key.IssuedAt.Format(time.RFC3339))
				fmt.Fprintf(out, "valid:     %t\n", valid)
				return nil
			})
		},
	}
}
