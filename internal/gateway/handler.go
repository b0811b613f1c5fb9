package gateway

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/tightlines/internal/logging"
)

// Handler adapts the engine to net/http. Relative request URLs are resolved
// against the app's own origin; absolute (proxy-style) URLs are used as-is so
// allow-listed external hosts can be reached through the gateway too.
type Handler struct {
	engine *Engine
	origin *url.URL
	logger logging.Logger
}

func NewHandler(engine *Engine, origin string, logger logging.Logger) (*Handler, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	return &Handler{engine: engine, origin: u, logger: logger}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := r.URL
	if !target.IsAbs() {
		target = h.origin.ResolveReference(r.URL)
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			h.logger.Warn(r.Context(), "failed to read request body", "url", target.String(), "error", err.Error())
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}

	req := &Request{
		Method:      r.Method,
		URL:         target,
		Destination: destinationOf(r),
		Body:        body,
	}

	resp := h.engine.Fetch(r.Context(), req)

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	// Pass-throughs are relayed untouched; only intercepted traffic is
	// stamped with its source.
	if h.engine.rules.Intercepts(req) {
		w.Header().Set("X-Served-From", string(resp.Source))
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// destinationOf derives the request destination from Sec-Fetch-Dest, falling
// back to the Accept header for clients that do not send fetch metadata.
func destinationOf(r *http.Request) Destination {
	switch r.Header.Get("Sec-Fetch-Dest") {
	case "document":
		return DestDocument
	case "image":
		return DestImage
	case "script":
		return DestScript
	case "style":
		return DestStyle
	}

	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "text/html"):
		return DestDocument
	case strings.HasPrefix(accept, "image/"):
		return DestImage
	}
	return DestOther
}
