// Package svcconfig implements the env+flag+JSON-with-comments config
// loading shared by authd and chatd, grounded on the teacher's tinode-db
// main() (flag.String("config", ...) + JsonConfigReader-wrapped
// json.Decoder) and spec.md §6's SERVER_* environment variable table.
package svcconfig

import (
	"encoding/json"
	"os"
	"strconv"

	jcr "github.com/DisposaBoy/JsonConfigReader"
)

// Store describes how to reach the database backend (spec.md §6's
// SERVER_DB_ADAPTER / SERVER_DB_DSN).
type Store struct {
	Adapter string `json:"adapter"`
	DSN     string `json:"dsn"`
}

// Mail describes the SMTP sender (spec.md §6's SERVER_MAIL_* vars), used
// only by authd.
type Mail struct {
	ServerAddress string `json:"server_address"`
	ServerPort    int    `json:"server_port"`
	Name          string `json:"name"`
	FromAddress   string `json:"from_address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

// Identity describes a chat server's own (server_id, domain, port) tuple,
// used only by chatd (spec.md §4.3).
type Identity struct {
	ServerID string `json:"server_id"`
	Domain   string `json:"domain"`
	Port     uint16 `json:"port"`
}

// File is the on-disk JSON-with-comments config shape for both services;
// either binary uses only the subset of fields relevant to it.
type File struct {
	ListenPort   int      `json:"listen_port"`
	Domain       string   `json:"domain"`
	Store        Store    `json:"store"`
	Mail         Mail     `json:"mail"`
	Identity     Identity `json:"identity"`
	MaxInFlight  int      `json:"max_in_flight"`
	WorkerID     int64    `json:"worker_id"`
}

// Load reads path through JsonConfigReader (which strips // and /* */
// comments before handing the stream to encoding/json, the teacher's
// config-loading idiom) and then lets environment variables named
// <envPrefix>_<FIELD> (e.g. AUTHD_DOMAIN, CHATD_DB_DSN, CHATD_SERVER_ID)
// override individual fields.
func Load(path, envPrefix string) (File, error) {
	var f File
	file, err := os.Open(path)
	if err != nil {
		return f, err
	}
	defer file.Close()
	if err := json.NewDecoder(jcr.New(file)).Decode(&f); err != nil {
		return f, err
	}
	applyEnv(&f, envPrefix)
	return f, nil
}

func applyEnv(f *File, prefix string) {
	if v := os.Getenv(prefix + "_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.ListenPort = n
		}
	}
	if v := os.Getenv(prefix + "_DOMAIN"); v != "" {
		f.Domain = v
	}
	if v := os.Getenv(prefix + "_DB_ADAPTER"); v != "" {
		f.Store.Adapter = v
	}
	if v := os.Getenv(prefix + "_DB_DSN"); v != "" {
		f.Store.DSN = v
	}
	if v := os.Getenv(prefix + "_MAIL_SERVER_ADDRESS"); v != "" {
		f.Mail.ServerAddress = v
	}
	if v := os.Getenv(prefix + "_MAIL_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Mail.ServerPort = n
		}
	}
	if v := os.Getenv(prefix + "_MAIL_NAME"); v != "" {
		f.Mail.Name = v
	}
	if v := os.Getenv(prefix + "_MAIL_FROM_ADDRESS"); v != "" {
		f.Mail.FromAddress = v
	}
	if v := os.Getenv(prefix + "_MAIL_USERNAME"); v != "" {
		f.Mail.Username = v
	}
	if v := os.Getenv(prefix + "_MAIL_PASSWORD"); v != "" {
		f.Mail.Password = v
	}
	if v := os.Getenv(prefix + "_SERVER_ID"); v != "" {
		f.Identity.ServerID = v
	}
	if v := os.Getenv(prefix + "_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.MaxInFlight = n
		}
	}
	if v := os.Getenv(prefix + "_WORKER_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.WorkerID = n
		}
	}
}
