// Package web serves the acquisition console: a single page that starts
// runs, fires pending software triggers and follows the log over SSE.
package web

import "embed"

// staticFiles holds index.html, embedded in the binary.
//
//go:embed static/*
var staticFiles embed.FS
