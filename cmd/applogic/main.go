package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rendis/applogic/internal/engine"
	"github.com/rendis/applogic/internal/logging"
	"github.com/rendis/applogic/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(context.Background(), cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: applogic <command> [args]

Commands:
  create-app <definition.json>                     validate and persist an app definition
  create-instance <app_id>                         create an instance with initial state
  invoke <instance_id> <agent_id> <role> <action> [params.json]
                                                   run an action and commit the outcome
  log <instance_id>                                show recent invocations
  pending <agent_id>                               show undelivered notifications`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(h))
}

func run(ctx context.Context, cfg Config, logger *slog.Logger, command string, args []string) error {
	_ = os.MkdirAll(applogicDir(), 0o755)

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	eng, err := engine.New(engine.WithLogger(logger))
	if err != nil {
		return err
	}
	svc := engine.NewService(eng, st, logger)
	if err := svc.LoadApps(ctx); err != nil {
		return err
	}

	switch command {
	case "create-app":
		if len(args) != 1 {
			return fmt.Errorf("usage: applogic create-app <definition.json>")
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		def, err := svc.CreateApp(ctx, raw)
		if err != nil {
			return err
		}
		fmt.Printf("app %q loaded (%d actions)\n", def.AppID, len(def.Actions))
		return nil

	case "create-instance":
		if len(args) != 1 {
			return fmt.Errorf("usage: applogic create-instance <app_id>")
		}
		inst, err := svc.CreateInstance(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(inst.ID)
		return nil

	case "invoke":
		if len(args) < 4 || len(args) > 5 {
			return fmt.Errorf("usage: applogic invoke <instance_id> <agent_id> <role> <action> [params.json]")
		}
		var params map[string]any
		if len(args) == 5 {
			raw, err := os.ReadFile(args[4])
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &params); err != nil {
				return fmt.Errorf("parse params: %w", err)
			}
		}
		result, err := svc.Invoke(ctx, args[0], args[1], args[2], args[3], params)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return nil

	case "log":
		if len(args) != 1 {
			return fmt.Errorf("usage: applogic log <instance_id>")
		}
		invs, err := st.ListInvocations(ctx, args[0], 50)
		if err != nil {
			return err
		}
		for _, inv := range invs {
			status := "ok"
			if !inv.Success {
				status = inv.ErrorCode
			}
			fmt.Printf("%s  %s  %s/%s  %s\n",
				inv.CreatedAt.Format("2006-01-02 15:04:05"), inv.ID, inv.AgentID, inv.Action, status)
		}
		return nil

	case "pending":
		if len(args) != 1 {
			return fmt.Errorf("usage: applogic pending <agent_id>")
		}
		notes, err := svc.PendingNotifications(ctx, args[0], 100)
		if err != nil {
			return err
		}
		for _, n := range notes {
			fmt.Printf("%d  [%s] %s\n", n.ID, n.Target, n.Message)
		}
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
