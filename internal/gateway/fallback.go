package gateway

import "net/http"

const offlinePage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Offline</title></head>
<body>
<h1>You are offline</h1>
<p>Your trip logs are safe on this device and will sync when you are back online.</p>
</body>
</html>
`

const offlineImage = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="150" viewBox="0 0 200 150">
<rect width="200" height="150" fill="#e5e7eb"/>
<text x="100" y="80" text-anchor="middle" fill="#6b7280" font-size="14">offline</text>
</svg>
`

const offlineJSON = `{"error":"service_unavailable","message":"This feature needs a connection. Your data is safe and will sync when you are back online."}`

// fallbackFor builds the content-negotiated offline response used by
// NetworkFirstWithFallback: a full page for documents, a placeholder graphic
// for images, a structured error for API-shaped URLs, and a minimal
// unavailable response otherwise.
func fallbackFor(req *Request) *Response {
	switch {
	case req.Destination == DestDocument:
		return fallbackResponse(http.StatusServiceUnavailable, "text/html; charset=utf-8", []byte(offlinePage))
	case req.Destination == DestImage:
		return fallbackResponse(http.StatusServiceUnavailable, "image/svg+xml", []byte(offlineImage))
	case apiShaped(req):
		return fallbackResponse(http.StatusServiceUnavailable, "application/json", []byte(offlineJSON))
	default:
		return offlinePlaceholder()
	}
}

// offlinePlaceholder is the minimal unavailable response returned when a
// strategy has neither network nor cache to serve from.
func offlinePlaceholder() *Response {
	return fallbackResponse(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("offline"))
}

func fallbackResponse(status int, contentType string, body []byte) *Response {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	return &Response{StatusCode: status, Header: h, Body: body, Source: SourceFallback}
}
