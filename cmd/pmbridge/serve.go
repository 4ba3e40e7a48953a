package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/model"
	"github.com/nhle/pmbridge/internal/store"
	pmsync "github.com/nhle/pmbridge/internal/sync"
)

// maxWebhookBody bounds inbound delivery payloads.
const maxWebhookBody = 1 << 20

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller and the webhook ingress endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(configFlag)
			if err != nil {
				return err
			}

			reg := backend.NewRegistry()
			adapters, err := loadBackends(reg, cfg)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			poller := pmsync.New(st)
			for _, bc := range cfg.Backends {
				adapter := adapters[bc.Kind+"/"+bc.Instance]
				// Backends with webhook parsing still poll as a safety
				// net; deliveries and polls dedupe through snapshots.
				poller.Register(adapter, bc)
			}
			poller.Start()
			defer poller.Stop()

			mux := http.NewServeMux()
			mux.HandleFunc("POST /hooks/{kind}/{instance}", func(w http.ResponseWriter, r *http.Request) {
				handleWebhook(w, r, adapters, st)
			})
			mux.HandleFunc("POST /refresh", func(w http.ResponseWriter, r *http.Request) {
				poller.RefreshAll()
				w.WriteHeader(http.StatusAccepted)
			})
			mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
				handleStatus(w, poller)
			})

			server := &http.Server{
				Addr:              cfg.Listen,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("webhook ingress listening on %s", cfg.Listen)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				log.Println("shutting down")
				return server.Close()
			}
		},
	}
}

// syncStateNames maps poller states to their wire form.
var syncStateNames = map[pmsync.State]string{
	pmsync.StateIdle:    "idle",
	pmsync.StateRunning: "running",
	pmsync.StateError:   "error",
}

// handleStatus reports the per-backend sync state as JSON.
func handleStatus(w http.ResponseWriter, poller *pmsync.Poller) {
	type statusRow struct {
		Backend  string `json:"backend"`
		Instance string `json:"instance"`
		State    string `json:"state"`
		LastSync string `json:"last_sync,omitempty"`
		Error    string `json:"error,omitempty"`
	}

	statuses := poller.Statuses()
	rows := make([]statusRow, 0, len(statuses))
	for _, st := range statuses {
		row := statusRow{
			Backend:  string(st.Kind),
			Instance: st.Instance,
			State:    syncStateNames[st.State],
		}
		if !st.LastSync.IsZero() {
			row.LastSync = st.LastSync.UTC().Format(time.RFC3339)
		}
		if st.Err != nil {
			row.Error = st.Err.Error()
		}
		rows = append(rows, row)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		log.Printf("encoding status response: %v", err)
	}
}

// handleWebhook verifies (when the backend supports it) and normalizes
// one inbound delivery, persisting the event to the audit store.
func handleWebhook(
	w http.ResponseWriter,
	r *http.Request,
	adapters map[string]backend.Adapter,
	st store.Store,
) {
	kind := r.PathValue("kind")
	instance := r.PathValue("instance")

	adapter, ok := adapters[kind+"/"+instance]
	if !ok {
		http.Error(w, "unknown backend", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	if wv, ok := adapter.(backend.WebhookVerifier); ok {
		// The verifier extracts its own signature header; the ingress
		// stays ignorant of backend-specific header names.
		if !wv.WebhookVerifier().Verify(body, r.Header) {
			http.Error(w, "signature verification failed", http.StatusForbidden)
			return
		}
	}

	wp, ok := adapter.(backend.WebhookParser)
	if !ok {
		http.Error(w, "backend does not accept webhooks", http.StatusNotImplemented)
		return
	}

	event := wp.WebhookParser().Parse(body, r.Header)
	if event == nil {
		// Valid delivery, nothing normalized from it.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := st.SaveEvent(r.Context(), kind, instance, event); err != nil {
		log.Printf("saving webhook event: %v", err)
		http.Error(w, "persisting event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, event.ID)
}
