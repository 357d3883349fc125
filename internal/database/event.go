package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/classparty/classparty/internal/models"
)

// InsertEvents writes a batch of mirrored events inside one transaction.
// Replays are harmless: the (session_id, seq) key makes inserts idempotent.
func InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO session_events (id, session_id, seq, author, type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (session_id, seq) DO NOTHING
		`
		for _, ev := range events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("marshal %s payload: %w", ev.Type, err)
			}
			if _, err := tx.Exec(ctx, q, ev.ID, ev.SessionID, ev.Seq, ev.Author, string(ev.Type), payload, ev.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert events: %w", err)
	}
	return nil
}

// UpsertSessionResult records a session's terminal status and final
// scoreboard for later reporting.
func UpsertSessionResult(ctx context.Context, sessionID uuid.UUID, status string, scores map[int]int) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsert := `
			INSERT INTO session_results (session_id, status)
			VALUES ($1, $2)
			ON CONFLICT (session_id) DO UPDATE SET status = $2
		`
		if _, err := tx.Exec(ctx, upsert, sessionID, status); err != nil {
			return err
		}
		for number, score := range scores {
			q := `
				INSERT INTO session_scores (session_id, player_number, score)
				VALUES ($1, $2, $3)
				ON CONFLICT (session_id, player_number) DO UPDATE SET score = $3
			`
			if _, err := tx.Exec(ctx, q, sessionID, number, score); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert session result: %w", err)
	}
	return nil
}
