// botctl is a small operator CLI that inspects the shared store directly,
// without going through the HTTP API. It is meant for the box the bot runs
// on: check status, dump settings, tail trades and logs, drain commands.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/0022papa/kiwoom-bot/internal/config"
	"github.com/0022papa/kiwoom-bot/internal/logger"
	"github.com/0022papa/kiwoom-bot/internal/models"
	"github.com/0022papa/kiwoom-bot/internal/persistence"
	"github.com/0022papa/kiwoom-bot/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	logger.InitLogger(models.LogConfig{Level: "warn", Output: "console"})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	repo := persistence.NewRepository(st, logger.S())

	switch flag.Arg(0) {
	case "status":
		showStatus(repo)
	case "settings":
		showSettings(repo)
	case "trades":
		showTrades(repo)
	case "logs":
		showLogs(repo)
	case "commands":
		showCommands(repo)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: botctl [-config path] <status|settings|trades|logs|commands>")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func showStatus(repo *persistence.Repository) {
	report, err := repo.Status()
	if err != nil {
		fatalf("failed to read status: %v", err)
	}

	t := newTable(table.Row{"Field", "Value"})
	if report.IsOffline {
		t.AppendRow(table.Row{"connection", "OFFLINE"})
	} else {
		t.AppendRow(table.Row{"connection", "online"})
	}
	t.AppendRow(table.Row{"last_sync_ago", fmt.Sprintf("%ds", report.LastSyncAgo)})
	for key, value := range report.Snapshot {
		t.AppendRow(table.Row{key, fmt.Sprintf("%v", value)})
	}
	t.Render()
}

func showSettings(repo *persistence.Repository) {
	settings, err := repo.Settings()
	if err != nil {
		fatalf("failed to read settings: %v", err)
	}

	// Render through the JSON form so the table shows the same field names
	// the bot and the dashboard use.
	blob, err := json.Marshal(settings)
	if err != nil {
		fatalf("failed to encode settings: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(blob, &fields); err != nil {
		fatalf("failed to decode settings: %v", err)
	}

	t := newTable(table.Row{"Setting", "Value"})
	for key, value := range fields {
		t.AppendRow(table.Row{key, fmt.Sprintf("%v", value)})
	}
	t.SortBy([]table.SortBy{{Name: "Setting", Mode: table.Asc}})
	t.Render()
}

func showTrades(repo *persistence.Repository) {
	trades, err := repo.RecentTrades()
	if err != nil {
		fatalf("failed to read trades: %v", err)
	}

	t := newTable(table.Row{"Time", "Action", "Code", "Name", "Qty", "Price", "Profit %", "Reason"})
	for _, trade := range trades {
		t.AppendRow(table.Row{
			trade.Timestamp.Format("2006-01-02 15:04:05"),
			trade.Action,
			trade.StockCode,
			trade.StockName,
			trade.Qty,
			trade.Price,
			fmt.Sprintf("%.2f", trade.ProfitRate),
			trade.Reason,
		})
	}
	t.Render()
}

func showLogs(repo *persistence.Repository) {
	logs, err := repo.RecentSystemLogs()
	if err != nil {
		fatalf("failed to read logs: %v", err)
	}

	t := newTable(table.Row{"Time", "Level", "Module", "Message"})
	for _, entry := range logs {
		t.AppendRow(table.Row{
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.Level,
			entry.Module,
			entry.Message,
		})
	}
	t.Render()
}

// showCommands peeks at the head of the queue without consuming it, showing
// the next command the bot will pick up.
func showCommands(repo *persistence.Repository) {
	cmd, err := repo.NextPendingCommand()
	if err != nil {
		fatalf("failed to read command queue: %v", err)
	}
	if cmd == nil {
		fmt.Println("command queue is empty")
		return
	}

	t := newTable(table.Row{"ID", "Type", "Status", "Created", "Payload"})
	t.AppendRow(table.Row{
		cmd.ID,
		cmd.Type,
		cmd.Status,
		cmd.CreatedAt.Format(time.RFC3339),
		string(cmd.Payload),
	})
	t.Render()
}
