// Package testutil provides fakes and fixtures shared by the loader tests:
// a call-counting retriever, an HTTP server that serves gzip dictionaries,
// and helpers for building compressed payloads.
package testutil
