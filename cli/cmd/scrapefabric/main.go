// Command scrapefabric runs the batch-entry HTTP server: POST a batch of
// companies, poll its status until it completes. Grounded on
// cli/cmd/ariadne/main.go's flag/signal/snapshot-loop shape, adapted from
// a seed-list crawl to the batch submit/poll API of spec.md §6.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/99souls/scrapefabric/engine"
	"github.com/99souls/scrapefabric/engine/internal/telemetry/metrics"
	"github.com/99souls/scrapefabric/engine/models"
)

type companyRequest struct {
	RegistrationID string `json:"registration_id"`
	URL            string `json:"url,omitempty"`
	TradeName      string `json:"trade_name,omitempty"`
	City           string `json:"city,omitempty"`
}

type batchServer struct {
	eng *engine.Engine

	mu       sync.Mutex
	trackers map[string]*metrics.StatusTracker
}

func newBatchServer(eng *engine.Engine) *batchServer {
	return &batchServer{eng: eng, trackers: make(map[string]*metrics.StatusTracker)}
}

// handleCreate implements POST /v1/batches: accepts a JSON array of
// companies, starts the batch in the background, and returns its id
// immediately so the caller polls GET /v1/batches/{id}/status instead of
// holding the connection open for the whole run.
func (s *batchServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var reqs []companyRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, fmt.Sprintf("decode body: %v", err), http.StatusBadRequest)
		return
	}
	if len(reqs) == 0 {
		http.Error(w, "batch must contain at least one company", http.StatusBadRequest)
		return
	}

	work := make([]models.CompanyWork, len(reqs))
	for i, req := range reqs {
		work[i] = models.CompanyWork{
			RegistrationID: req.RegistrationID,
			URL:            req.URL,
			TradeName:      req.TradeName,
			City:           req.City,
		}
	}

	batchID := uuid.NewString()
	tracker := s.eng.NewBatchTracker(batchID, len(work))

	s.mu.Lock()
	s.trackers[batchID] = tracker
	s.mu.Unlock()

	go s.eng.RunBatch(context.Background(), tracker, work)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"batch_id": batchID})
}

// handleStatus implements GET /v1/batches/{id}/status: the stable
// status object of spec.md §6, rendered live from the tracker.
func (s *batchServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/batches/"), "/status")
	s.mu.Lock()
	tracker, ok := s.trackers[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown batch id", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.eng.Status(tracker))
}

func main() {
	var (
		addr        string
		configPath  string
		proxyList   string
		healthAddr  string
		showVersion bool
	)
	flag.StringVar(&addr, "addr", ":8080", "listen address for the batch API")
	flag.StringVar(&configPath, "config", "", "YAML config file (see SCRAPEFABRIC_ env overrides)")
	flag.StringVar(&proxyList, "proxies", "", "comma-separated proxy URLs")
	flag.StringVar(&healthAddr, "health", "", "optional separate address for /healthz")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("scrapefabric batch server")
		return
	}

	var (
		cfg engine.Config
		err error
	)
	if configPath != "" {
		store, loadErr := engine.LoadConfig(configPath)
		if loadErr != nil {
			log.Fatalf("load config: %v", loadErr)
		}
		cfg = store.Current()
	} else {
		cfg = engine.Defaults()
	}

	var proxyURLs []string
	for _, p := range strings.Split(proxyList, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			proxyURLs = append(proxyURLs, p)
		}
	}

	eng, err := engine.New(cfg, proxyURLs)
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}
	defer func() { _ = eng.Stop() }()

	srv := newBatchServer(eng)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/batches", srv.handleCreate)
	mux.HandleFunc("/v1/batches/", srv.handleStatus)

	healthMux := mux
	if healthAddr != "" {
		healthMux = http.NewServeMux()
	}
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		hs := eng.HealthSnapshot(r.Context())
		_ = json.NewEncoder(w).Encode(hs)
	})

	httpSrv := &http.Server{Addr: addr, Handler: mux}
	var healthSrv *http.Server
	if healthAddr != "" {
		healthSrv = &http.Server{Addr: healthAddr, Handler: healthMux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("signal received; shutting down")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		if healthSrv != nil {
			_ = healthSrv.Shutdown(shutdownCtx)
		}
	}()

	if healthSrv != nil {
		go func() {
			log.Printf("health endpoint listening on %s", healthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("health server: %v", err)
			}
		}()
	}

	log.Printf("batch API listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("batch server: %v", err)
	}
}
