// Copyright 2025 James Ross
package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/TGAC/grassroots-core/internal/dispatcher"
	"go.uber.org/zap"
)

// dispatchHandler adapts the dispatcher's JSON-envelope contract to a
// single HTTP POST endpoint. Transport is deliberately just bytes in,
// bytes out: the envelope carries its own operation routing.
func dispatchHandler(d *dispatcher.Dispatcher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
		if err != nil {
			http.Error(w, "could not read request body", http.StatusBadRequest)
			return
		}

		resp := d.Dispatch(r.Context(), raw)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil && log != nil {
			log.Warn("grassrootsd: failed writing response", zap.Error(err))
		}
	}
}
