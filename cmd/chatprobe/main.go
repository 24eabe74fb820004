// Command chatprobe is a smoke testing tool for the client data layer. It
// logs in, hydrates the cache, subscribes to the realtime feed and optionally
// sends a message through the optimistic pipeline, printing what it sees.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quad/internal/engine"
	"quad/internal/middleware"
	"quad/internal/models"
	"quad/internal/realtime"
	"quad/internal/remote"
	"quad/internal/store"
)

func main() {
	host := flag.String("host", "localhost:8375", "dev server host")
	email := flag.String("email", "demo@quad.local", "login email")
	password := flag.String("password", "demo-password", "login password")
	chatID := flag.String("chat", "", "chat to probe; empty picks the most recent")
	message := flag.String("send", "", "message to send through the optimistic pipeline")
	redisAddr := flag.String("redis", "", "redis address for cache persistence (optional)")
	duration := flag.Duration("duration", 30*time.Second, "how long to listen for feed events")
	flag.Parse()

	logger := middleware.Logger
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := remote.NewHTTPClient("http://"+*host, logger)
	viewer, err := backend.Login(ctx, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	log.Printf("Logged in as %s (%s)", viewer.Username, viewer.ID)

	st := store.New()
	if *redisAddr != "" {
		if client := store.OpenRedis(ctx, *redisAddr, logger); client != nil {
			persistence := store.NewPersistence(client, logger)
			persistence.Hydrate(ctx, st)
			defer persistence.SaveSummaries(context.Background(), st)
		}
	}
	eng := engine.New(st, backend, viewer.ID, logger)

	summaries, err := eng.ChatList(ctx, "", nil)
	if err != nil {
		log.Fatalf("Loading chat list failed: %v", err)
	}
	for _, s := range summaries {
		fmt.Printf("chat %s  unread=%d  %q\n", s.Chat.ID, s.UnreadCount, s.PreviewText)
	}
	if *chatID == "" && len(summaries) > 0 {
		*chatID = summaries[0].Chat.ID
	}

	feed, err := realtime.Dial(ctx, "ws://"+*host+"/api/ws", backend.Token(), logger)
	if err != nil {
		log.Fatalf("Feed dial failed: %v", err)
	}
	defer func() { _ = feed.Close() }()

	apply := func(ev models.TableEvent) {
		eng.ApplyEvent(ev)
		fmt.Printf("event %s/%s: %s\n", ev.Table, ev.Type, ev.Row)
	}
	for _, table := range []string{models.TableMessages, models.TableChats, models.TableVotes} {
		if _, err := feed.Subscribe(table, nil, apply, apply); err != nil {
			log.Fatalf("Subscribe %s failed: %v", table, err)
		}
	}

	if *message != "" && *chatID != "" {
		msg, err := eng.SendMessage(ctx, *chatID, *message)
		if err != nil {
			log.Fatalf("Send failed: %v", err)
		}
		log.Printf("Sent message %s", msg.ID)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(*duration):
		log.Println("Listen window elapsed")
	case <-interrupt:
		log.Println("Interrupted")
	case <-feed.Done():
		log.Println("Feed connection closed by server")
	}
}
