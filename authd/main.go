package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	_ "github.com/joshuafhiggins/realm-chat/auth/store/adapter" // registers mysql/postgres/sqlite (blank import)

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshuafhiggins/realm-chat/auth/flow"
	"github.com/joshuafhiggins/realm-chat/auth/mail"
	"github.com/joshuafhiggins/realm-chat/auth/store/adapter"
	"github.com/joshuafhiggins/realm-chat/pkg/dispatch"
	"github.com/joshuafhiggins/realm-chat/pkg/svcconfig"
)

func main() {
	conffile := flag.String("config", "./authd.conf", "path to the authd config file")
	metricsAddr := flag.String("metrics", ":9101", "Prometheus metrics listen address")
	flag.Parse()

	logger := log.New(os.Stderr, "authd: ", log.LstdFlags)

	cfg, err := svcconfig.Load(*conffile, "AUTHD")
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}
	if cfg.Domain == "" {
		logger.Fatal("config: domain is required")
	}

	store := adapter.Get(cfg.Store.Adapter)
	if store == nil {
		logger.Fatalf("unknown store adapter %q", cfg.Store.Adapter)
	}
	if err := store.Open(cfg.Store.DSN); err != nil {
		logger.Fatalf("opening store: %v", err)
	}
	if err := store.CreateSchema(); err != nil {
		logger.Fatalf("creating schema: %v", err)
	}
	defer store.Close()

	sender := mail.NewSMTPSender(mail.Config{
		ServerAddress: cfg.Mail.ServerAddress,
		ServerPort:    cfg.Mail.ServerPort,
		Name:          cfg.Mail.Name,
		FromAddress:   cfg.Mail.FromAddress,
		Username:      cfg.Mail.Username,
		Password:      cfg.Mail.Password,
	})

	engine := flow.NewEngine(store, sender, cfg.Domain)
	handler := &Handler{Engine: engine}

	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 10
	}
	srv := dispatch.NewServer(logger, maxInFlight, 30*time.Second)

	listenPort := cfg.ListenPort
	if listenPort == 0 {
		listenPort = 5052 // spec.md §4.3's well-known Auth port
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", listenPort))
	if err != nil {
		logger.Fatalf("listening: %v", err)
	}
	logger.Printf("authd listening on %s (store=%s domain=%s)", ln.Addr(), store.GetName(), cfg.Domain)

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
