// Package gateway is the request router and cache engine. Every application
// request passes through it; each one is classified by URL pattern and served
// through one of four caching strategies over versioned cache partitions, so
// the app stays usable with zero connectivity.
package gateway

import (
	"net/http"
	"net/url"
)

// Destination is the consumer of a request's response, mirroring the
// Sec-Fetch-Dest request header. It drives content-negotiated fallbacks and
// static vs dynamic cache placement.
type Destination string

const (
	DestDocument Destination = "document"
	DestImage    Destination = "image"
	DestScript   Destination = "script"
	DestStyle    Destination = "style"
	DestOther    Destination = ""
)

// Request is the descriptor of one intercepted application request. Body is
// only carried for pass-through methods; intercepted GETs never have one.
type Request struct {
	Method      string
	URL         *url.URL
	Destination Destination
	Body        []byte
}

// Source records how a response was produced.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Response is an immutable response snapshot. Bodies are fully buffered so a
// snapshot can be stored and replayed byte for byte.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Source     Source
}

// OK reports whether the response is cacheable (a non-error status).
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 400
}

// Clone returns an independent copy.
func (r *Response) Clone() *Response {
	c := &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       make([]byte, len(r.Body)),
		Source:     r.Source,
	}
	copy(c.Body, r.Body)
	return c
}
