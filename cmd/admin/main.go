// admin is a command line client for the admin HTTP API.
//
//	admin [--addr URL] [--password PW] stats
//	admin ban <user_id>
//	admin unban <user_id>
//	admin credit <user_id> <amount>
//	admin debit <user_id> <amount>
//	admin terminate-all
//
// The password defaults to $ADMIN_PASSWORD (a .env file is honoured).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, out io.Writer) error {
	_ = godotenv.Load()

	var addr, password string
	var timeout time.Duration
	flagSet := pflag.NewFlagSet("admin", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", envOr("ADMIN_API_ADDR", "http://localhost:8080"), "base URL of the HTTP API")
	flagSet.StringVar(&password, "password", os.Getenv("ADMIN_PASSWORD"), "admin password")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printUsage(out, flagSet)
		return errors.New("no command given")
	}
	if password == "" {
		return errors.New("admin password is required (--password or ADMIN_PASSWORD)")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := newAPIClient(addr)
	if err := client.login(ctx, password); err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "stats":
		var stats map[string]any
		if err := client.do(ctx, "GET", "/admin/stats", nil, &stats); err != nil {
			return err
		}
		for _, key := range []string{"total_users", "users_in_chat", "active_sessions", "queue_depth", "banned_users", "total_balance", "total_referrals"} {
			fmt.Fprintf(out, "%-16s %v\n", key, stats[key])
		}
	case "ban", "unban":
		if len(rest) != 1 {
			return fmt.Errorf("usage: admin %s <user_id>", cmd)
		}
		if err := client.do(ctx, "POST", "/admin/users/"+rest[0]+"/"+cmd, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "User %s: %s done.\n", rest[0], cmd)
	case "credit", "debit":
		if len(rest) != 2 {
			return fmt.Errorf("usage: admin %s <user_id> <amount>", cmd)
		}
		amount, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", rest[1])
		}
		var resp struct {
			Balance int64 `json:"balance"`
		}
		if err := client.do(ctx, "POST", "/admin/users/"+rest[0]+"/"+cmd, map[string]int64{"amount": amount}, &resp); err != nil {
			return err
		}
		fmt.Fprintf(out, "User %s balance: %d\n", rest[0], resp.Balance)
	case "terminate-all":
		var resp struct {
			Terminated int `json:"terminated"`
		}
		if err := client.do(ctx, "POST", "/admin/sessions/terminate-all", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(out, "Terminated %d sessions.\n", resp.Terminated)
	default:
		printUsage(out, flagSet)
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage(out io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(out, "Usage: admin [flags] <stats|ban|unban|credit|debit|terminate-all> [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprint(out, flagSet.FlagUsages())
}
