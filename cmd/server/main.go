/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire notifier (SMTP if configured, log otherwise)
  4. Create API handler and holiday sync scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080)
  -db            SQLite database path (default: leave.db)
                 Use ":memory:" for in-memory database
  -holiday-url   Base URL of the Nager.Date-compatible holiday feed
                 (default: https://date.nager.at/api/v3; empty disables sync)
  -country       Country code for the holiday feed (default: NG)
  -smtp-host     SMTP host; empty keeps the log-only notifier
  -smtp-port     SMTP port (default: 587)
  -smtp-user     SMTP username
  -smtp-pass     SMTP password
  -mail-from     From address for notification mail

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the holiday scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # Run with in-memory database and no holiday sync
  ./server -db=":memory:" -holiday-url=""

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "leave.db", "SQLite database path")
	holidayURL := flag.String("holiday-url", "https://date.nager.at/api/v3", "holiday feed base URL (empty disables sync)")
	country := flag.String("country", "NG", "country code for the holiday feed")
	smtpHost := flag.String("smtp-host", "", "SMTP host (empty keeps log-only notifications)")
	smtpPort := flag.Int("smtp-port", 587, "SMTP port")
	smtpUser := flag.String("smtp-user", "", "SMTP username")
	smtpPass := flag.String("smtp-pass", "", "SMTP password")
	mailFrom := flag.String("mail-from", "leave@localhost", "From address for notification mail")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Notifier: SMTP when configured, log lines otherwise
	var notifier leave.Notifier = notify.Log{}
	if *smtpHost != "" {
		notifier = notify.NewMail(notify.MailConfig{
			Host:     *smtpHost,
			Port:     *smtpPort,
			Username: *smtpUser,
			Password: *smtpPass,
			From:     *mailFrom,
		}, store)
	}

	// Holiday sync
	var syncer *leave.HolidaySyncer
	if *holidayURL != "" {
		syncer = leave.NewHolidaySyncer(leave.NewHTTPHolidaySource(*holidayURL, *country), store)
	}

	handler := api.NewHandler(store, notifier, syncer)
	router := api.NewRouter(handler)

	scheduler := api.NewHolidayScheduler(syncer)
	if syncer != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
