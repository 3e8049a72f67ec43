// Command depotctl runs operational chores against a depot deployment:
// triggering background jobs, reading the job queue and bootstrapping users.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/depotline/depot/cmd/depotctl/cli"
	"github.com/depotline/depot/internal/app"
	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/roles"
	"github.com/depotline/depot/internal/shared"
	"github.com/depotline/depot/internal/users"
	"github.com/depotline/depot/jobs"
)

const usage = `usage: depotctl <command> [flags]

commands:
  jobs trigger <type>      enqueue a job now (%v)
  jobs stats               show the default queue counters
  jobs scheduled [-n N]    list scheduled tasks
  users create -email E -name N -password P [-role admin]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintf(stderr, usage, jobs.TaskTypes)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(stderr, "load config:", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "jobs":
		err = runJobs(ctx, cfg, args[1:], stdout)
	case "users":
		err = runUsers(ctx, cfg, logger, args[1:], stdout)
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, usage, jobs.TaskTypes)
			return 2
		}
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout io.Writer) error {
	opts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := jobs.NewClient(opts)
	defer client.Close()
	inspector := asynq.NewInspector(opts)
	defer inspector.Close()
	c := cli.NewJobsCLI(client, inspector, stdout)

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return usageError("jobs trigger: missing task type")
		}
		return c.Trigger(ctx, args[1])
	case "stats":
		return c.PrintStats(ctx)
	case "scheduled":
		fs := flag.NewFlagSet("jobs scheduled", flag.ContinueOnError)
		size := fs.Int("n", 10, "number of tasks to list")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err.Error())
		}
		return c.ListScheduled(ctx, *size)
	}
	return usageError(fmt.Sprintf("unknown jobs command %q", args[0]))
}

func runUsers(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	if args[0] != "create" {
		return usageError(fmt.Sprintf("unknown users command %q", args[0]))
	}
	fs := flag.NewFlagSet("users create", flag.ContinueOnError)
	var opts cli.AdminOptions
	fs.StringVar(&opts.Email, "email", "", "login email")
	fs.StringVar(&opts.Name, "name", "Administrator", "display name")
	fs.StringVar(&opts.Password, "password", "", "initial password")
	fs.StringVar(&opts.Role, "role", "admin", "role name")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err.Error())
	}

	pool, err := db.New(ctx, cfg.MySQLDSN, db.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: cfg.MySQLConnMaxLifetime})
	if err != nil {
		return fmt.Errorf("connect mysql: %w", err)
	}
	defer pool.Close()

	audit := shared.NewAuditLogger(pool)
	usersService := users.NewService(users.NewRepository(pool), audit, nil, logger)
	rolesService := roles.NewService(roles.NewRepository(pool), nil, audit, logger)
	_, err = cli.NewAdminCLI(usersService, rolesService, stdout).CreateUser(ctx, opts)
	return err
}
