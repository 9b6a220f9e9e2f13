// Command chatctl is a schema-management CLI for the Auth and Chat
// services, grounded on the teacher's tinode-db main() (flag-driven
// config load, adapter.Open, adapter.CreateSchema, optional --reset).
package main

import (
	"flag"
	"log"
	"os"

	authadapter "github.com/joshuafhiggins/realm-chat/auth/store/adapter"
	chatadapter "github.com/joshuafhiggins/realm-chat/chat/store/adapter"
	"github.com/joshuafhiggins/realm-chat/pkg/svcconfig"
)

func main() {
	service := flag.String("service", "", "which service's schema to manage: auth or chat")
	conffile := flag.String("config", "", "path to the service's config file")
	envPrefix := flag.String("env-prefix", "", "env var prefix to overlay onto the config (AUTHD or CHATD)")
	reset := flag.Bool("reset", false, "drop and recreate the schema")
	flag.Parse()

	logger := log.New(os.Stderr, "chatctl: ", log.LstdFlags)

	if *service != "auth" && *service != "chat" {
		logger.Fatal("-service must be \"auth\" or \"chat\"")
	}
	if *conffile == "" {
		logger.Fatal("-config is required")
	}
	prefix := *envPrefix
	if prefix == "" {
		if *service == "auth" {
			prefix = "AUTHD"
		} else {
			prefix = "CHATD"
		}
	}

	cfg, err := svcconfig.Load(*conffile, prefix)
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}

	switch *service {
	case "auth":
		a := authadapter.Get(cfg.Store.Adapter)
		if a == nil {
			logger.Fatalf("unknown auth store adapter %q", cfg.Store.Adapter)
		}
		if err := a.Open(cfg.Store.DSN); err != nil {
			logger.Fatalf("opening store: %v", err)
		}
		defer a.Close()
		if *reset {
			logger.Println("reset requested: dropping and recreating auth schema")
			if err := a.ResetSchema(); err != nil {
				logger.Fatalf("resetting schema: %v", err)
			}
		} else if err := a.CreateSchema(); err != nil {
			logger.Fatalf("creating schema: %v", err)
		}
		logger.Printf("auth schema ready on %s adapter", a.GetName())

	case "chat":
		a := chatadapter.Get(cfg.Store.Adapter)
		if a == nil {
			logger.Fatalf("unknown chat store adapter %q", cfg.Store.Adapter)
		}
		if err := a.Open(cfg.Store.DSN); err != nil {
			logger.Fatalf("opening store: %v", err)
		}
		defer a.Close()
		if *reset {
			logger.Println("reset requested: dropping and recreating chat schema")
			if err := a.ResetSchema(); err != nil {
				logger.Fatalf("resetting schema: %v", err)
			}
		} else if err := a.CreateSchema(); err != nil {
			logger.Fatalf("creating schema: %v", err)
		}
		logger.Printf("chat schema ready on %s adapter", a.GetName())
	}
}
