package handler

import (
	_ "embed"
	"net/http"
)

var (
	//go:embed openapi.json
	openAPIDocument []byte

	//go:embed docs.html
	docsPage []byte
)

// NewOpenAPIHandler serves the API description at /openapi.json.
func NewOpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(openAPIDocument)
	}
}

// NewDocsHandler serves an interactive page rendering /openapi.json.
func NewDocsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(docsPage)
	}
}
