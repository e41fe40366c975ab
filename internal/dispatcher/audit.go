// Copyright 2025 James Ross
package dispatcher

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/TGAC/grassroots-core/internal/config"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// AuditEntry is one line of the rotated audit log.
type AuditEntry struct {
	Timestamp  string `json:"timestamp"`
	Operation  string `json:"operation,omitempty"`
	ServerURI  string `json:"server_uri,omitempty"`
	NumServices int   `json:"num_services,omitempty"`
	Error      string `json:"error,omitempty"`
}

// AuditLogger writes one JSON line per dispatched request, rotated with
// lumberjack.
type AuditLogger struct {
	mu   sync.Mutex
	out  *lumberjack.Logger
	enc  *json.Encoder
}

// NewAuditLogger constructs an AuditLogger from config, or returns nil
// if auditing is disabled.
func NewAuditLogger(cfg config.Audit) *AuditLogger {
	if !cfg.Enabled {
		return nil
	}
	out := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.RotateSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	return &AuditLogger{out: out, enc: json.NewEncoder(out)}
}

// Record appends one audit entry.
func (a *AuditLogger) Record(entry AuditEntry) {
	if a == nil {
		return
	}
	entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(entry)
}

// Close flushes and closes the underlying rotated file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	return a.out.Close()
}
