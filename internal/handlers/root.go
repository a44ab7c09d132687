package handlers

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// RootResponse describes the service for clients discovering the API.
type RootResponse struct {
	Service   string `json:"service"`
	Status    string `json:"status"`
	BaseURL   string `json:"base_url"`
	SchemaURL string `json:"schema_url"`
}

func Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Service:   "CosRay-Backend API",
		Status:    "ok",
		BaseURL:   absoluteURL(r, ""),
		SchemaURL: absoluteURL(r, "/api/schema/"),
	})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Schema serves the OpenAPI document of the API.
func Schema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.oai.openapi; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

// NotFound and the other error pages render the JSON bodies used for
// errors outside the API views.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found (404)"})
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeDetail(w, http.StatusMethodNotAllowed, `Method "`+r.Method+`" not allowed.`)
}

func BadRequestPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Bad Request (400)"})
}

func PermissionDeniedPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden (403)"})
}

func ServerErrorPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server Error (500)"})
}
