package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	_ "github.com/joshuafhiggins/realm-chat/chat/store/adapter" // registers mysql/postgres/sqlite (blank import)

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshuafhiggins/realm-chat/chat/events"
	"github.com/joshuafhiggins/realm-chat/chat/store"
	"github.com/joshuafhiggins/realm-chat/chat/store/adapter"
	"github.com/joshuafhiggins/realm-chat/pkg/capability"
	"github.com/joshuafhiggins/realm-chat/pkg/dispatch"
	"github.com/joshuafhiggins/realm-chat/pkg/svcconfig"
)

func main() {
	conffile := flag.String("config", "./chatd.conf", "path to the chatd config file")
	metricsAddr := flag.String("metrics", ":9102", "Prometheus metrics listen address")
	flag.Parse()

	logger := log.New(os.Stderr, "chatd: ", log.LstdFlags)

	cfg, err := svcconfig.Load(*conffile, "CHATD")
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}
	if cfg.Domain == "" || cfg.Identity.ServerID == "" {
		logger.Fatal("config: domain and identity.server_id are required")
	}

	dbAdapter := adapter.Get(cfg.Store.Adapter)
	if dbAdapter == nil {
		logger.Fatalf("unknown store adapter %q", cfg.Store.Adapter)
	}
	if err := dbAdapter.Open(cfg.Store.DSN); err != nil {
		logger.Fatalf("opening store: %v", err)
	}
	if err := dbAdapter.CreateSchema(); err != nil {
		logger.Fatalf("creating schema: %v", err)
	}
	defer dbAdapter.Close()

	listenPort := cfg.ListenPort
	if listenPort == 0 {
		listenPort = 5051
	}

	self := capability.Identity{
		ServerID: cfg.Identity.ServerID,
		Domain:   cfg.Domain,
		Port:     uint16(listenPort),
	}
	cache := capability.NewCache(capability.DefaultCapacity, capability.DefaultTTI, capability.DefaultTTL)
	defer cache.Stop()
	validator := capability.NewValidator(self, cache)

	var outbox *sqlx.DB
	if raw, ok := dbAdapter.(interface{ SqlxDB() *sqlx.DB }); ok {
		outbox = raw.SqlxDB()
		if outbox != nil {
			if _, err := outbox.Exec(events.EventLogSchema); err != nil {
				logger.Fatalf("creating event_log outbox table: %v", err)
			}
		}
	}

	log_ := events.NewLog(outbox)
	engine := store.NewEngine(dbAdapter, validator, log_, cfg.Identity.ServerID)
	handler := &Handler{Engine: engine, Events: log_, ServerID: cfg.Identity.ServerID}

	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 10
	}
	srv := dispatch.NewServer(logger, maxInFlight, 30*time.Second)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", listenPort))
	if err != nil {
		logger.Fatalf("listening: %v", err)
	}
	logger.Printf("chatd listening on %s (store=%s server_id=%s domain=%s)",
		ln.Addr(), dbAdapter.GetName(), cfg.Identity.ServerID, cfg.Domain)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Printf("metrics listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			logger.Printf("metrics server stopped: %v", err)
		}
	}()

	if err := srv.Serve(ln, handler.Serve); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}
