package main

import (
	"context"
	"fmt"
	"freelynx/backend/internal/auth"
	"freelynx/backend/internal/config"
	"freelynx/backend/internal/logging"
	"freelynx/backend/internal/storage"
	"log"
	"log/slog"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  recompute-summary <conversation_id>   rebuild one conversation's last-message summary
  recompute-all                          rebuild every conversation's summary
  token <user_id>                        print a signed token for local testing`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	logger := logging.NewLogger("freelynx-admin", cfg.LogLevel)
	ctx := context.Background()

	switch command := os.Args[1]; command {
	case "token":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin token <user_id>")
			os.Exit(1)
		}
		token, err := auth.NewService(cfg.JWT.Secret, cfg.JWT.TTL).GenerateToken(os.Args[2])
		if err != nil {
			log.Fatalf("Error issuing token: %v", err)
		}
		fmt.Println(token)

	case "recompute-summary":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin recompute-summary <conversation_id>")
			os.Exit(1)
		}
		s := openStorage(cfg)
		if err := s.RecomputeLastMessage(ctx, os.Args[2]); err != nil {
			log.Fatalf("Error recomputing summary: %v", err)
		}
		fmt.Printf("Summary of conversation %s recomputed.\n", os.Args[2])

	case "recompute-all":
		s := openStorage(cfg)
		n, failed := recomputeAll(ctx, s)
		for _, err := range failed {
			logger.Error("recompute failed", "err", err)
		}
		fmt.Printf("Recomputed %d conversations, %d failed.\n", n, len(failed))
		if len(failed) > 0 {
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown command %q\n\n%s\n", command, usage)
		os.Exit(1)
	}
}

// openStorage connects to Postgres only; the admin commands never touch the
// presence mirror.
func openStorage(cfg *config.Config) *storage.Service {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	return storage.NewStorageService(db, nil, slog.Default())
}

func recomputeAll(ctx context.Context, s storage.Storage) (int, []error) {
	ids, err := s.ListConversationIDs(ctx)
	if err != nil {
		return 0, []error{err}
	}
	var failed []error
	done := 0
	for _, id := range ids {
		if err := s.RecomputeLastMessage(ctx, id); err != nil {
			failed = append(failed, fmt.Errorf("conversation %s: %w", id, err))
			continue
		}
		done++
	}
	return done, failed
}
