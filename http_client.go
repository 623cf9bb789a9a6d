package main

import (
	"net/http"
	"time"
)

// The Slack and Telegram clients share one HTTP client so a stalled API
// cannot hold a scheduler goroutine open past the timeout.
const outboundAPITimeout = 30 * time.Second

var outboundHTTPClient = &http.Client{
	Timeout: outboundAPITimeout,
}
