// Package waflog is a Go client for the waflog HTTP API.
//
// Quick start:
//
//	c := waflog.New("http://localhost:5000")
//	entries, err := c.Logs(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range entries {
//	    fmt.Println(e.Request.Timestamp, e.Request.HTTPStatus, e.Detection.AttackClass)
//	}
//
// Reads are retried on 429 and 5xx responses with exponential backoff.
// Writes are never retried, since a retry could append an entry twice.
// A Client is safe for concurrent use.
package waflog
