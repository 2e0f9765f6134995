package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ilkhoeri/youapp-test-sub001/internal/api"
	"github.com/ilkhoeri/youapp-test-sub001/internal/cache"
	"github.com/ilkhoeri/youapp-test-sub001/internal/channel"
	"github.com/ilkhoeri/youapp-test-sub001/internal/grouping"
	"github.com/ilkhoeri/youapp-test-sub001/internal/models"
	"github.com/ilkhoeri/youapp-test-sub001/internal/presence"
	"github.com/ilkhoeri/youapp-test-sub001/internal/receipts"
	"github.com/ilkhoeri/youapp-test-sub001/internal/send"
	"github.com/ilkhoeri/youapp-test-sub001/internal/store"
	"github.com/ilkhoeri/youapp-test-sub001/internal/syncer"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	secret := os.Getenv("CHANNEL_SECRET")
	if secret == "" {
		log.Fatal("CHANNEL_SECRET is required")
	}
	userID := env("USER_ID", "user-demo")
	userName := env("USER_NAME", userID)
	threadID := os.Getenv("THREAD_ID")
	if threadID == "" {
		log.Fatal("THREAD_ID is required")
	}
	apiBase := env("API_BASE_URL", "http://localhost:4040")
	wsURL := env("WS_URL", "ws://localhost:4040/ws")

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Snapshot cache is optional. A dead Redis degrades to cold opens.
	var threadCache *cache.ThreadCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rc := cache.NewRedisCache(addr, os.Getenv("REDIS_PASSWORD"), 0)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, continuing without snapshot cache", zap.Error(err))
			_ = rc.Close()
		} else {
			threadCache = cache.NewThreadCache(rc)
			defer func() { _ = rc.Close() }()
		}
	}

	viewer := models.Sender{ID: userID, Name: userName}
	persist := api.NewClient(apiBase, userID)
	rec := store.NewReconciler(logger)
	rt := receipts.NewTracker(persist, userID, receipts.DefaultWindow, logger)
	pipeline := send.NewPipeline(persist, rec, viewer, logger)

	ch := channel.NewClient(channel.ClientConfig{
		URL:    wsURL,
		UserID: userID,
		Secret: []byte(secret),
	}, logger)
	if err := ch.Connect(ctx); err != nil {
		logger.Fatal("channel connect failed", zap.Error(err))
	}
	defer ch.Close()

	pres := presence.NewTracker(ch, logger)
	if err := pres.Start(); err != nil {
		logger.Fatal("presence start failed", zap.Error(err))
	}
	defer pres.Stop()

	session := syncer.NewSession(ch, rec, persist, threadCache, rt, viewer, logger)
	session.OnThreadNew(func(t models.Thread) {
		fmt.Printf("* new thread: %s (%s)\n", t.Name, t.ID)
	})
	session.OnTyping(func(p syncer.TypingPayload) {
		fmt.Printf("* %s is typing...\n", p.UserID)
	})
	if err := session.Start(); err != nil {
		logger.Fatal("session start failed", zap.Error(err))
	}
	defer session.Stop()

	// Incoming messages from others count as visible in this terminal view.
	newBinding := ch.Bind(channel.EventMessageNew, func(ev channel.Event) {
		if ev.Channel != channel.ThreadKey(session.OpenThreadID()) {
			return
		}
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return
		}
		if msg.SenderID == userID {
			return
		}
		fmt.Printf("%s: %s\n", msg.SenderID, msg.Body)
		rt.NoteVisible(msg.ThreadID, msg)
	})
	defer newBinding.Unbind()

	st, err := session.OpenThread(ctx, threadID)
	if err != nil {
		logger.Fatal("open thread failed", zap.Error(err))
	}
	render(st.Snapshot(), userID)

	fmt.Println("type a message and press enter; /list redraws, /online shows presence, /quit exits")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			rt.Wait()
			pipeline.Wait()
			session.Wait()
			return
		case line == "/list":
			render(st.Snapshot(), userID)
		case line == "/online":
			for _, u := range pres.Roster() {
				fmt.Printf("  %s (%s)\n", u.Name, u.ID)
			}
		default:
			if err := session.SendTyping(); err != nil {
				logger.Debug("typing publish failed", zap.Error(err))
			}
			if _, err := pipeline.Send(ctx, threadID, send.Compose{Body: line}); err != nil {
				fmt.Printf("! rejected: %v\n", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("stdin read failed", zap.Error(err))
	}
}

// render prints the thread the way a chat pane would lay it out: day
// separators, sender shown once per run, edit and receipt markers inline.
func render(msgs []models.Message, viewerID string) {
	g := grouping.Group(msgs, viewerID, time.Local)
	for _, day := range g.DateKeys {
		fmt.Printf("---- %s ----\n", day)
		for _, m := range g.ByDate[day] {
			if !m.IsRepeatInDay {
				name := m.Sender.Name
				if name == "" {
					name = m.SenderID
				}
				fmt.Printf("[%s]\n", name)
			}
			line := m.Body
			if m.IsDeleted {
				line = "(deleted)"
			}
			marker := ""
			if m.IsEdited {
				marker = " (edited)"
			}
			if m.Status == models.StatusSending {
				marker += " ..."
			} else if m.Status == models.StatusFailed {
				marker += " !failed"
			}
			fmt.Printf("  %s  %s%s\n", m.CreatedAt.Local().Format("15:04"), line, marker)
		}
	}
	fmt.Printf("(%d messages)\n", g.TotalCount)
}
