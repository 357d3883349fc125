// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/cache"
	"github.com/classparty/classparty/internal/game"
	"github.com/classparty/classparty/internal/handlers"
	"github.com/classparty/classparty/internal/identity"
	"github.com/classparty/classparty/internal/middleware"
	"github.com/classparty/classparty/internal/session"
	"github.com/classparty/classparty/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if path := os.Getenv("IDENTITY_PUBLIC_KEY_FILE"); path != "" {
		if err := identity.InitFromPath(path); err != nil {
			log.Fatalf("load identity key: %v", err)
		}
	} else {
		// Dev mode: mint and verify with an ephemeral keypair.
		if err := identity.Init(); err != nil {
			log.Fatalf("init identity: %v", err)
		}
		logger.Warn("IDENTITY_PUBLIC_KEY_FILE not set, using ephemeral dev keypair")
	}

	st := store.NewMemoryStore(logger)
	runtime := game.NewRuntime(st, logger)
	registry := session.NewRegistry(st, runtime, logger)
	sweeper := session.NewSweeper(st, runtime, logger, session.MaxIdle)

	// The Redis mirror feeds the archiver. The engine runs fine without it.
	if queue, err := cache.Connect(); err != nil {
		logger.Warnf("event mirror disabled: %v", err)
	} else {
		runtime.SetMirror(queue)
		registry.SetMirror(queue)
		sweeper.SetMirror(queue)
		defer queue.Close()
	}

	// Backstop for sessions whose players walked away mid-game.
	go sweeper.Run(context.Background(), session.SweepInterval)

	srv := handlers.NewServer(st, registry, runtime, logger)
	handler := middleware.LogMiddleware(logger)(srv.Routes())

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
