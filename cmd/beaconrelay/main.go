// Command beaconrelay is a development relay for pagebeacon signals.
//
// It accepts PUT /beacon payloads, persists them in SQLite, and serves the
// recorded presence set as JSON (GET /beacons) and as an HTML status page
// (GET /).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagebeacon/internal/relaystore"
)

const heartbeatInterval = 15 * time.Second

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	dbPath := flag.String("db", "presence.db", "path to the SQLite presence database")
	expire := flag.Duration("expire", 5*time.Minute, "mark entries inactive after this silence (0 disables)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *addr, *dbPath, *expire); err != nil {
		logger.Error("beaconrelay: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, addr, dbPath string, expire time.Duration) error {
	store, err := relaystore.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if expire > 0 {
		go expireLoop(ctx, logger, store, expire)
	}

	hw := store.NewHeartbeatWriter(heartbeatInterval, logger)
	go hw.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(logger, store),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("beaconrelay: listening", "addr", addr, "db", dbPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// signalPayload mirrors the beacon wire format.
type signalPayload struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	Image       string `json:"image,omitempty"`
}

func newRouter(logger *slog.Logger, store *relaystore.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Put("/beacon", func(w http.ResponseWriter, req *http.Request) {
		var p signalPayload
		if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if p.URL == "" || p.Name == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "url and name are required"})
			return
		}

		entry, err := store.Record(req.Context(), p.URL, p.Name, p.Description, p.Image, p.Active)
		if err != nil {
			logger.Error("beaconrelay: record failed", "url", p.URL, "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		logger.Info("beaconrelay: signal recorded",
			"url", entry.URL, "name", entry.Name, "count", entry.SignalCount)
		writeJSON(w, http.StatusOK, entry)
	})

	r.Get("/beacons", func(w http.ResponseWriter, req *http.Request) {
		entries, err := store.Active(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if entries == nil {
			entries = []*relaystore.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		hs, err := store.LatestHeartbeat(req.Context(), 3*heartbeatInterval)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if hs == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, hs)
	})

	r.Get("/", statusPage(logger, store))

	return r
}

var statusTmpl = template.Must(template.New("status").Parse(`<!doctype html>
<html>
<head><title>beaconrelay</title></head>
<body>
<h1>Active pages</h1>
<table border="1" cellpadding="4">
<tr><th>Name</th><th>URL</th><th>Description</th><th>Signals</th><th>Last seen</th></tr>
{{range .}}
<tr>
<td>{{.Name}}</td>
<td><a href="{{.URL}}">{{.URL}}</a></td>
<td>{{.Description}}</td>
<td>{{.SignalCount}}</td>
<td>{{.LastSeenTime}}</td>
</tr>
{{else}}
<tr><td colspan="5">no active pages</td></tr>
{{end}}
</table>
</body>
</html>
`))

type statusRow struct {
	Name         string
	URL          string
	Description  string
	SignalCount  int
	LastSeenTime string
}

func statusPage(logger *slog.Logger, store *relaystore.Store) http.HandlerFunc {
	// Page-supplied strings are stripped of any markup before templating.
	strict := bluemonday.StrictPolicy()

	return func(w http.ResponseWriter, req *http.Request) {
		entries, err := store.Active(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		rows := make([]statusRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, statusRow{
				Name:         strict.Sanitize(e.Name),
				URL:          e.URL,
				Description:  strict.Sanitize(e.Description),
				SignalCount:  e.SignalCount,
				LastSeenTime: time.UnixMilli(e.LastSeen).Format(time.RFC3339),
			})
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := statusTmpl.Execute(w, rows); err != nil {
			logger.Error("beaconrelay: render status page", "error", err)
		}
	}
}

func expireLoop(ctx context.Context, logger *slog.Logger, store *relaystore.Store, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Expire(ctx, maxAge)
			if err != nil {
				logger.Warn("beaconrelay: expire failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("beaconrelay: entries expired", "count", n)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
