package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/0022papa/kiwoom-bot/internal/models"
	"github.com/0022papa/kiwoom-bot/internal/store"
)

// RecentTrades returns up to TradeHistoryLimit trades, newest first.
// Records that fail to decode are skipped so one corrupt row never blocks
// visibility of the rest.
func (r *Repository) RecentTrades() ([]models.TradeLogEntry, error) {
	records, err := r.store.ReadRecent(store.TableTrades, TradeHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read trade log: %w", err)
	}

	trades := make([]models.TradeLogEntry, 0, len(records))
	for _, record := range records {
		var entry models.TradeLogEntry
		if err := json.Unmarshal(record, &entry); err != nil {
			r.logger.Warnf("skipping undecodable trade record: %v", err)
			continue
		}
		trades = append(trades, entry)
	}
	return trades, nil
}

// RecentSystemLogs returns up to SystemLogLimit bot log lines, newest first.
func (r *Repository) RecentSystemLogs() ([]models.SystemLogEntry, error) {
	records, err := r.store.ReadRecent(store.TableSystemLogs, SystemLogLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read system log: %w", err)
	}

	logs := make([]models.SystemLogEntry, 0, len(records))
	for _, record := range records {
		var entry models.SystemLogEntry
		if err := json.Unmarshal(record, &entry); err != nil {
			r.logger.Warnf("skipping undecodable system log record: %v", err)
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

// AppendTrade records one executed trade. Bot-process side of the contract.
func (r *Repository) AppendTrade(entry models.TradeLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.store.AppendLog(store.TableTrades, data)
}

// AppendSystemLog records one bot log line. Bot-process side of the contract.
func (r *Repository) AppendSystemLog(entry models.SystemLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.store.AppendLog(store.TableSystemLogs, data)
}
