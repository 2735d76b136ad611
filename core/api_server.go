package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/sabbir-lite-0/repolens/core/github"
	"github.com/sabbir-lite-0/repolens/utils"
)

// APIServer exposes the analyzer over HTTP for the dashboard UI: analysis
// kickoff, report retrieval, chat, pool stats, and the progress WebSocket.
type APIServer struct {
	logger    *utils.Logger
	config    utils.Config
	analyzer  *Analyzer
	dashboard *Dashboard
	router    *mux.Router

	reportsMux sync.RWMutex
	reports    map[string]CompositeReport
}

func NewAPIServer(logger *utils.Logger, config utils.Config, analyzer *Analyzer, dashboard *Dashboard) *APIServer {
	server := &APIServer{
		logger:    logger,
		config:    config,
		analyzer:  analyzer,
		dashboard: dashboard,
		router:    mux.NewRouter(),
		reports:   make(map[string]CompositeReport),
	}

	server.setupRoutes()
	return server
}

func (s *APIServer) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/analyze", s.startAnalysis).Methods("POST")
	api.HandleFunc("/chat", s.chat).Methods("POST")

	api.HandleFunc("/reports", s.listReports).Methods("GET")
	api.HandleFunc("/reports/recent", s.getRecentAnalyses).Methods("GET")
	api.HandleFunc("/reports/{owner}/{repo}", s.getReport).Methods("GET")
	api.HandleFunc("/reports/{owner}/{repo}", s.deleteReport).Methods("DELETE")

	api.HandleFunc("/pool/stats", s.getPoolStats).Methods("GET")

	api.HandleFunc("/dashboard/ws", s.handleDashboardWebSocket)
	api.HandleFunc("/dashboard/stats", s.getDashboardStats).Methods("GET")

	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir("./static/")))
}

func (s *APIServer) Start(addr string) error {
	s.logger.Info("Starting API server on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *APIServer) startAnalysis(w http.ResponseWriter, r *http.Request) {
	var request struct {
		URL string `json:"url"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if request.URL == "" {
		s.respondWithError(w, http.StatusBadRequest, "Repository URL is required")
		return
	}

	owner, repo, err := utils.ParseRepoURL(request.URL)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	go s.runAnalysis(request.URL, owner, repo)

	s.respondWithJSON(w, http.StatusAccepted, map[string]string{
		"message":    "Analysis started",
		"repository": owner + "/" + repo,
	})
}

// runAnalysis executes one analysis in the background, relaying dispatcher
// progress to the dashboard and keeping the finished report available for
// the report and chat endpoints.
func (s *APIServer) runAnalysis(url, owner, repo string) {
	fullName := owner + "/" + repo
	s.logger.Info("Starting analysis for %s", fullName)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := s.analyzer.AnalyzeRepo(ctx, url, func(dimension, event string) {
		s.dashboard.BroadcastProgress(fullName, dimension, event)
	})
	if err != nil {
		s.logger.Error("Analysis of %s failed: %v", fullName, err)
		s.dashboard.BroadcastUpdate(DashboardMessage{
			Type: "analysis_failed",
			Payload: map[string]interface{}{
				"repository": fullName,
				"error":      err.Error(),
				"time":       time.Now(),
			},
		})
		return
	}

	s.reportsMux.Lock()
	s.reports[strings.ToLower(fullName)] = report
	s.reportsMux.Unlock()

	s.dashboard.BroadcastReport(report)
}

func (s *APIServer) chat(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Repository string        `json:"repository"`
		History    []ChatMessage `json:"history"`
		Message    string        `json:"message"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if request.Message == "" {
		s.respondWithError(w, http.StatusBadRequest, "Message is required")
		return
	}

	s.reportsMux.RLock()
	report, ok := s.reports[strings.ToLower(request.Repository)]
	s.reportsMux.RUnlock()
	if !ok {
		s.respondWithError(w, http.StatusNotFound, fmt.Sprintf("No report for %s; analyze it first", request.Repository))
		return
	}

	reply := s.analyzer.ChatWithRepo(r.Context(), request.History, request.Message, report)
	s.respondWithJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *APIServer) listReports(w http.ResponseWriter, r *http.Request) {
	s.reportsMux.RLock()
	defer s.reportsMux.RUnlock()

	summaries := make([]map[string]interface{}, 0, len(s.reports))
	for _, report := range s.reports {
		summaries = append(summaries, map[string]interface{}{
			"repository":     report.Repository,
			"overall_score":  report.OverallScore,
			"maturity_level": report.MaturityLevel,
			"fallback":       report.Fallback,
			"generated_at":   report.GeneratedAt,
		})
	}

	s.respondWithJSON(w, http.StatusOK, summaries)
}

func (s *APIServer) getReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fullName := vars["owner"] + "/" + vars["repo"]

	s.reportsMux.RLock()
	report, ok := s.reports[strings.ToLower(fullName)]
	s.reportsMux.RUnlock()

	if !ok {
		s.respondWithError(w, http.StatusNotFound, fmt.Sprintf("No report for %s", fullName))
		return
	}

	s.respondWithJSON(w, http.StatusOK, report)
}

func (s *APIServer) getRecentAnalyses(w http.ResponseWriter, r *http.Request) {
	entries := s.analyzer.RecentAnalyses(r.Context(), 0)
	if entries == nil {
		entries = []string{}
	}
	s.respondWithJSON(w, http.StatusOK, entries)
}

func (s *APIServer) deleteReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fullName := vars["owner"] + "/" + vars["repo"]

	s.reportsMux.Lock()
	delete(s.reports, strings.ToLower(fullName))
	s.reportsMux.Unlock()

	s.analyzer.InvalidateReport(r.Context(), vars["owner"], vars["repo"])
	s.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Report discarded", "repository": fullName})
}

func (s *APIServer) getPoolStats(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.analyzer.PoolStats())
}

func (s *APIServer) handleDashboardWebSocket(w http.ResponseWriter, r *http.Request) {
	s.dashboard.HandleConnections(w, r)
}

func (s *APIServer) getDashboardStats(w http.ResponseWriter, r *http.Request) {
	s.reportsMux.RLock()
	reportCount := len(s.reports)
	s.reportsMux.RUnlock()

	stats := s.dashboard.GetStats()
	stats["reports_held"] = reportCount
	stats["key_pool"] = s.analyzer.PoolStats()

	s.respondWithJSON(w, http.StatusOK, stats)
}

// IsNotFoundError lets handlers map a repository fetch failure onto 404.
func IsNotFoundError(err error) bool {
	var fetchErr *github.FetchError
	return errors.As(err, &fetchErr) && fetchErr.NotFound()
}

func (s *APIServer) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (s *APIServer) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}
