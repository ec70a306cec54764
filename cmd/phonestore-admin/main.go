// Command phonestore-admin runs operator tasks against the store database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"phonestore/internal/config"
)

const usage = `usage: phonestore-admin [--config FILE] [--db-driver D] [--db-dsn DSN] <command> [flags]

commands:
  migrate        apply schema migrations and normalize legacy rows
  create-admin   create or promote an admin account
  users          list accounts
  seed FILE      load users and products from a YAML or JSON file
  import FILE    import products from an .xlsx workbook
`

type command func(ctx context.Context, env *env, args []string) error

var commands = map[string]command{
	"migrate":      runMigrate,
	"create-admin": runCreateAdmin,
	"users":        runUsers,
	"seed":         runSeed,
	"import":       runImport,
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[config] .env: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	global, name, rest, err := splitArgs(args)
	if err != nil {
		return err
	}
	cmd, found := commands[name]
	if !found {
		fmt.Fprint(os.Stderr, usage)
		if name == "" {
			return errors.New("missing command")
		}
		return fmt.Errorf("unknown command %q", name)
	}
	cfg, err := config.Parse(global, os.LookupEnv)
	if err != nil {
		return err
	}
	e, err := openEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()
	return cmd(ctx, e, rest)
}

// splitArgs separates the global flags understood by config.Parse from the
// command name and its own arguments.
func splitArgs(args []string) (global []string, name string, rest []string, err error) {
	fs := pflag.NewFlagSet("phonestore-admin", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	fs.String("config", "", "JSON config file (comments allowed)")
	fs.String("db-driver", "", "database driver: sqlite or pgx")
	fs.String("db-dsn", "", "database DSN")
	if err := fs.Parse(args); err != nil {
		return nil, "", nil, err
	}
	tail := fs.Args()
	global = args[:len(args)-len(tail)]
	if len(tail) == 0 {
		return global, "", nil, nil
	}
	return global, strings.TrimSpace(tail[0]), tail[1:], nil
}
