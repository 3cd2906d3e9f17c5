package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caliperdev/campaignmanager/internal/campaign"
	"github.com/caliperdev/campaignmanager/internal/config"
	"github.com/caliperdev/campaignmanager/internal/database"
	"github.com/caliperdev/campaignmanager/internal/export"
	"github.com/caliperdev/campaignmanager/internal/metrics"
	"github.com/caliperdev/campaignmanager/internal/models"
	"github.com/caliperdev/campaignmanager/internal/monitor"
	"github.com/caliperdev/campaignmanager/internal/storage"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server wraps HTTP handlers and the campaign/monitor services.
type Server struct {
	campaignService *campaign.Service
	monitorService  *monitor.Service
	sourceStore     storage.SourceRowStore
	logger          *zap.Logger
	config          *config.Config
	metrics         *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	// Initialize repositories, falling back to in-memory stores when a
	// backend is unavailable.
	var cRepo storage.CampaignRepo
	if deps.DB != nil {
		cRepo = storage.NewPostgresCampaignRepo(deps.DB.Pool)
	} else {
		cRepo = storage.NewInMemoryCampaignRepo()
	}

	var srcStore storage.SourceRowStore
	if deps.ClickHouse != nil {
		srcStore = storage.NewClickHouseSourceRowStore(deps.ClickHouse.Conn)
	} else {
		srcStore = storage.NewInMemorySourceRowStore()
	}

	var cache storage.MonitorCache
	if deps.Redis != nil {
		cache = storage.NewRedisMonitorCache(deps.Redis.Client, deps.Config.Monitor.CacheTTL)
	} else {
		cache = storage.NewInMemoryMonitorCache()
	}

	s := &Server{
		campaignService: campaign.NewService(cRepo, deps.Logger, deps.Metrics),
		monitorService: monitor.NewService(
			cRepo, srcStore, cache,
			deps.Logger, deps.Metrics,
			deps.Config.Monitor.StaleAfter,
			deps.Config.Monitor.RefreshBatchSize,
		),
		sourceStore: srcStore,
		logger:      deps.Logger,
		config:      deps.Config,
		metrics:     deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Campaign management
	mux.HandleFunc("/campaigns", s.handleCampaigns)
	mux.HandleFunc("/campaigns/import", s.handleImport)
	mux.HandleFunc("/campaigns/reset", s.handleReset)
	mux.HandleFunc("/campaigns/", s.handleCampaignByID)

	// Source datasets
	mux.HandleFunc("/sources/", s.handleSourceRows)

	// Monitor
	mux.HandleFunc("/monitor", s.handleMonitor)
	mux.HandleFunc("/monitor/dimensions", s.handleDimensions)
	mux.HandleFunc("/monitor/refresh", s.handleRefresh)

	// Exports
	mux.HandleFunc("/export/pivot", s.handleExportPivot)
	mux.HandleFunc("/export/long", s.handleExportLong)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Campaigns CRUD ----

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.campaignService.List(r.Context(), r.URL.Query().Get("dataset_id"))
		if err != nil {
			s.logger.Error("failed to list campaigns", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var c models.Campaign
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.campaignService.Upsert(r.Context(), &c); err != nil {
			s.errorResponse(w, "failed to save: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, c)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCampaignByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/campaigns/")
	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		s.campaignByID(w, r, id)
	case "allocation":
		s.campaignAllocation(w, r, id)
	case "notes":
		s.campaignNotes(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) campaignByID(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		c, err := s.campaignService.Get(r.Context(), id)
		if err != nil {
			s.logger.Error("failed to get campaign", zap.Error(err))
			s.errorResponse(w, "error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if c == nil {
			http.NotFound(w, r)
			return
		}
		s.jsonResponse(w, c)

	case http.MethodDelete:
		if err := s.campaignService.Delete(r.Context(), id); err != nil {
			s.errorResponse(w, "failed to delete: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[string]string{"status": "deleted"})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) campaignAllocation(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	preview, err := s.campaignService.PreviewAllocation(r.Context(), id)
	if err != nil {
		s.errorResponse(w, "error: "+err.Error(), http.StatusNotFound)
		return
	}
	s.jsonResponse(w, preview)
}

func (s *Server) campaignNotes(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Date string `json:"date"`
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.campaignService.SetNote(r.Context(), id, body.Date, body.Text); err != nil {
			s.errorResponse(w, "failed to save note: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, map[string]string{"status": "saved"})

	case http.MethodDelete:
		date := r.URL.Query().Get("date")
		if date == "" {
			s.errorResponse(w, "date required", http.StatusBadRequest)
			return
		}
		if err := s.campaignService.DeleteNote(r.Context(), id, date); err != nil {
			s.errorResponse(w, "failed to delete note: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, map[string]string{"status": "deleted"})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Import / Reset ----

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req campaign.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := s.campaignService.ImportRows(r.Context(), req)
	if err != nil {
		s.errorResponse(w, "import failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.jsonResponse(w, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	datasetID := r.URL.Query().Get("dataset_id")
	if err := s.campaignService.ResetAll(r.Context(), datasetID); err != nil {
		s.errorResponse(w, "failed to reset: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "reset"})
}

// ---- Source Rows ----

func (s *Server) handleSourceRows(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sources/")
	datasetID, tail, _ := strings.Cut(rest, "/")
	if datasetID == "" || tail != "rows" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rows, err := s.sourceStore.ListRows(r.Context(), datasetID)
		if err != nil {
			s.logger.Error("failed to list source rows", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, rows)

	case http.MethodPost:
		var rows []models.SourceRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.sourceStore.AppendRows(r.Context(), datasetID, rows); err != nil {
			s.errorResponse(w, "failed to append: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[string]int{"appended": len(rows)})

	case http.MethodDelete:
		if err := s.sourceStore.DeleteDataset(r.Context(), datasetID); err != nil {
			s.errorResponse(w, "failed to delete: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[string]string{"status": "deleted"})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Monitor ----

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	g, ok := monitor.ParseGranularity(q.Get("granularity"))
	if !ok {
		s.errorResponse(w, "unknown granularity "+q.Get("granularity"), http.StatusBadRequest)
		return
	}
	force, _ := strconv.ParseBool(q.Get("force"))

	rows, err := s.monitorService.Rollup(r.Context(),
		q.Get("campaign_dataset"), q.Get("source_dataset"), g, force)
	if err != nil {
		s.logger.Error("monitor failed", zap.Error(err))
		s.errorResponse(w, "failed to aggregate", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, rows)
}

func (s *Server) handleDimensions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	rows, err := s.monitorService.DimensionBreakdown(r.Context(), q.Get("dataset_id"), q.Get("column"))
	if err != nil {
		s.errorResponse(w, "failed to group: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.jsonResponse(w, rows)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req monitor.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	// Progress events are streamed as newline-delimited JSON.
	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for ev := range s.monitorService.Refresh(r.Context(), req) {
		if err := enc.Encode(ev); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// ---- Exports ----

func (s *Server) handleExportPivot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	campaigns, err := s.campaignService.List(r.Context(), r.URL.Query().Get("dataset_id"))
	if err != nil {
		s.errorResponse(w, "failed to list campaigns", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="allocation_pivot.csv"`)
	rows, err := export.WritePivot(w, campaigns, time.Now().UTC())
	if err != nil {
		s.logger.Error("pivot export failed", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordExport("pivot", rows)
	}
}

func (s *Server) handleExportLong(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	campaigns, err := s.campaignService.List(r.Context(), q.Get("dataset_id"))
	if err != nil {
		s.errorResponse(w, "failed to list campaigns", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="allocation_long.csv"`)
	rows, err := export.WriteLong(w, campaigns, q.Get("key_column"))
	if err != nil {
		s.logger.Error("long export failed", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordExport("long", rows)
	}
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
