package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nurkhatq/qrcode/internal/export"
	"github.com/nurkhatq/qrcode/internal/extract"
	"github.com/nurkhatq/qrcode/internal/ingest"
	"github.com/nurkhatq/qrcode/internal/repository"
)

func newRouter(svc *ingest.Service, repo repository.ShipmentRepository, exporter *export.Service, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/ingest", handleIngest(svc, logger))
	r.Get("/api/shipments", handleList(repo, logger))
	r.Get("/api/export.xlsx", handleExport(exporter, logger))
	return r
}

type ingestRequest struct {
	URL string `json:"url"`
}

func handleIngest(svc *ingest.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}

		stats, err := svc.RunCycle(r.Context(), req.URL)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, stats)
		case errors.Is(err, ingest.ErrBusy):
			writeError(w, http.StatusConflict, "another ingestion is in progress, try again later")
		case errors.Is(err, extract.ErrMetadataMissing):
			writeError(w, http.StatusUnprocessableEntity, "could not read this document's date")
		case errors.Is(err, extract.ErrNoRecordsRecovered):
			writeError(w, http.StatusUnprocessableEntity, "could not find any rows in this document")
		default:
			logger.Error("ingest failed", "url", req.URL, "error", err)
			writeError(w, http.StatusBadGateway, "document could not be ingested")
		}
	}
}

func handleList(repo repository.ShipmentRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := filterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		recs, err := repo.List(r.Context(), filter)
		if err != nil {
			logger.Error("list shipments failed", "error", err)
			writeError(w, http.StatusInternalServerError, "listing failed")
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleExport(exporter *export.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := filterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		data, err := exporter.WorkbookBytes(r.Context(), filter)
		if err != nil {
			logger.Error("export failed", "error", err)
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="shipments.xlsx"`)
		_, _ = w.Write(data)
	}
}

func filterFromQuery(r *http.Request) (repository.ListFilter, error) {
	var filter repository.ListFilter
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return filter, errors.New("invalid 'from' date")
		}
		filter.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return filter, errors.New("invalid 'to' date")
		}
		filter.To = &t
	}
	filter.SourceRef = r.URL.Query().Get("source_ref")
	return filter, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
