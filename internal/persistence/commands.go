package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/0022papa/kiwoom-bot/internal/models"
)

// EnqueueBulkSell appends a liquidate-all instruction. The enqueue never
// blocks and never deduplicates; a repeated click produces a second entry
// and the consumer dedupes on the requested-at timestamp.
func (r *Repository) EnqueueBulkSell() error {
	payload, err := json.Marshal(models.BulkSellPayload{RequestedAt: r.now()})
	if err != nil {
		return err
	}
	id, err := r.store.EnqueueCommand(models.CmdBulkSell, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue bulk sell: %w", err)
	}
	r.logger.Infow("bulk sell command enqueued", "command_id", id)
	return nil
}

// NextPendingCommand returns the oldest unconsumed command, or nil when the
// queue is drained. This is the consumer half of the queue, used by the bot
// process; the control process never reads command state.
func (r *Repository) NextPendingCommand() (*models.Command, error) {
	rec, err := r.store.NextPendingCommand()
	if err != nil {
		return nil, fmt.Errorf("failed to read command queue: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	return &models.Command{
		ID:        rec.ID,
		Type:      rec.Type,
		Payload:   rec.Payload,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// MarkCommandDone advances a consumed command to DONE.
func (r *Repository) MarkCommandDone(id int64) error {
	return r.store.MarkCommandDone(id)
}
