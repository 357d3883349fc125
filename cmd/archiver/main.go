// cmd/archiver/main.go
//
// The archiver drains the Redis event mirror and persists the log to
// Postgres. It is the only process that touches the database; the engine
// itself stays on the realtime store.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/cache"
	"github.com/classparty/classparty/internal/database"
	"github.com/classparty/classparty/internal/models"
)

const (
	batchSize     = 50
	flushInterval = 5 * time.Second
	popTimeout    = 2 * time.Second
)

func main() {
	logger := logrus.New()
	database.ConnectDB()

	queue, err := cache.Connect()
	if err != nil {
		log.Fatalf("connect event queue: %v", err)
	}
	defer queue.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("archiver draining event mirror")
	run(ctx, logger, queue)
	logger.Info("archiver stopped")
}

func run(ctx context.Context, logger *logrus.Logger, queue *cache.Queue) {
	batch := make([]models.Event, 0, batchSize)
	lastFlush := time.Now()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := database.InsertEvents(ctx, batch); err != nil {
			logger.Errorf("insert %d events: %v", len(batch), err)
			return
		}
		for _, ev := range batch {
			recordOutcome(ctx, logger, ev)
		}
		logger.Debugf("archived %d events", len(batch))
		batch = batch[:0]
		lastFlush = time.Now()
	}

	for {
		ev, err := queue.Pop(ctx, popTimeout)
		if ctx.Err() != nil {
			flush()
			return
		}
		if err != nil {
			logger.Warnf("pop event: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if ev != nil {
			batch = append(batch, *ev)
		}
		if len(batch) >= batchSize || (len(batch) > 0 && time.Since(lastFlush) >= flushInterval) {
			flush()
		}
	}
}

// recordOutcome upserts the session result row when a terminal event passes
// through the mirror.
func recordOutcome(ctx context.Context, logger *logrus.Logger, ev models.Event) {
	status, scores, ok := outcomeFor(ev)
	if !ok {
		return
	}
	if err := database.UpsertSessionResult(ctx, ev.SessionID, status, scores); err != nil {
		logger.Errorf("record outcome for session %s: %v", ev.SessionID, err)
	}
}

// outcomeFor maps a terminal event to the result row it should produce.
// Matching is on the typed payload, never on notice text.
func outcomeFor(ev models.Event) (status string, scores map[int]int, ok bool) {
	switch p := ev.Payload.(type) {
	case models.GameEndedPayload:
		return string(models.StatusFinished), nil, true
	case models.QuizFinishedPayload:
		return string(models.StatusFinished), p.Scores, true
	case models.CancelledPayload:
		return string(models.StatusCancelled), nil, true
	default:
		return "", nil, false
	}
}
