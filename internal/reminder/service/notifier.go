package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/strataops/ledgerline/internal/providers/email"
	"github.com/strataops/ledgerline/internal/reminder/domain"
)

type emailNotifier struct {
	log   *zap.Logger
	email email.Provider
}

// NewEmailNotifier delivers reminders over the configured email provider.
func NewEmailNotifier(log *zap.Logger, provider email.Provider) domain.Notifier {
	return &emailNotifier{
		log:   log.Named("reminder.notifier"),
		email: provider,
	}
}

func (n *emailNotifier) Notify(ctx context.Context, state *domain.ReminderState) error {
	if state.Recipient == "" {
		return fmt.Errorf("reminder %s has no recipient", state.ID)
	}

	stage := state.ReminderCount + 1
	subject := fmt.Sprintf("Reminder %d: %s due %s",
		stage, humanizeEntityType(state.EntityType), state.DueAt.Format("2006-01-02"))

	var body strings.Builder
	body.WriteString("<p>This is a reminder that your ")
	body.WriteString(humanizeEntityType(state.EntityType))
	body.WriteString(" is due on <b>")
	body.WriteString(state.DueAt.Format("2006-01-02"))
	body.WriteString("</b>.</p>")
	if note, ok := state.Payload["note"].(string); ok && note != "" {
		body.WriteString("<p>")
		body.WriteString(note)
		body.WriteString("</p>")
	}

	if err := n.email.Send(ctx, []string{state.Recipient}, subject, body.String()); err != nil {
		return err
	}

	n.log.Info("reminder delivered",
		zap.String("entity_type", state.EntityType),
		zap.String("entity_id", state.EntityID.String()),
		zap.Int("stage", stage),
	)

	return nil
}

func humanizeEntityType(entityType string) string {
	return strings.ReplaceAll(entityType, "_", " ")
}
