// chatsyncd serves the in-memory tree store over websocket for development
// and integration testing. Production clients talk to the real backend; the
// sync engine does not care which end of the wire it is on.
package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lamberthyl/chatsync/internal/config"
	"github.com/lamberthyl/chatsync/internal/logging"
	"github.com/lamberthyl/chatsync/internal/store/memstore"
	"github.com/lamberthyl/chatsync/internal/store/wsserver"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := logging.NewDefault(level)

	hub := wsserver.New(memstore.New(), log)

	log.Info(ctx, "listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, hub.Router()); err != nil {
		log.Error(ctx, "server stopped", "err", err)
	}
}
