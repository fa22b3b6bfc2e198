package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kereru-dev/markovgen/pkg/markov"
	"github.com/kereru-dev/markovgen/pkg/store"
)

// ModelAPI holds the dependencies for the model management API handlers.
type ModelAPI struct {
	store  *store.Store
	logger *slog.Logger
}

// NewModelAPI creates a new instance of the ModelAPI.
func NewModelAPI(s *store.Store, logger *slog.Logger) *ModelAPI {
	return &ModelAPI{
		store:  s,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api endpoints.
func (m *ModelAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", m.handleListAndCreateModels)
	mux.HandleFunc("/api/models/", m.handleModelByName)
	mux.HandleFunc("/api/import", m.handleImport)
	mux.HandleFunc("/api/stats", m.handleStats)
}

type CreateModelRequest struct {
	Name     string                      `json:"name"`
	Alphabet []string                    `json:"alphabet"`
	Edges    []markov.Transition[string] `json:"edges,omitempty"`
}

type TransitionsRequest struct {
	Edges []markov.Transition[string] `json:"edges"`
}

// GenerateRequest describes one generation call. Start is a pointer so an
// absent field can be told apart from the empty string, which is a valid
// symbol in some alphabets.
type GenerateRequest struct {
	Length        int     `json:"length"`
	Start         *string `json:"start,omitempty"`
	DeadEndPolicy string  `json:"dead_end_policy,omitempty"`
}

type GenerateResponse struct {
	Sequence []string `json:"sequence"`
}

type PruneRequest struct {
	MinCount int64 `json:"min_count"`
}

// handleListAndCreateModels handles GET for listing and POST for creating models.
func (m *ModelAPI) handleListAndCreateModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		models, err := m.store.GetModelInfos(r.Context())
		if err != nil {
			m.logger.Error("Failed to get model infos", "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
			return
		}
		// Convert map to slice for consistent JSON output
		modelList := make([]store.ModelInfo, 0, len(models))
		for _, model := range models {
			modelList = append(modelList, model)
		}
		respondWithJSON(w, http.StatusOK, modelList)

	case http.MethodPost:
		var req CreateModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if req.Name == "" {
			respondWithError(w, http.StatusBadRequest, "Model name is required")
			return
		}
		if _, err := m.store.GetModelInfo(r.Context(), req.Name); err == nil {
			respondWithError(w, http.StatusConflict, "A model with this name already exists")
			return
		}

		model, err := markov.New(req.Alphabet, req.Edges...)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid model definition: %v", err))
			return
		}

		info, err := m.store.SaveModel(r.Context(), req.Name, model)
		if err != nil {
			m.logger.Error("Failed to save new model", "name", req.Name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create model: %v", err))
			return
		}
		respondWithJSON(w, http.StatusCreated, info)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleModelByName routes actions for a specific model, e.g., transitions,
// generate, prune, export, stats, delete.
func (m *ModelAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(path, "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	info, err := m.store.GetModelInfo(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		m.logger.Error("Failed to get model info by name", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	if len(parts) == 1 { // Path is just /api/models/{name}
		if r.Method == http.MethodDelete {
			if err = m.store.RemoveModel(r.Context(), info); err != nil {
				m.logger.Error("Failed to remove model", "name", modelName, "error", err)
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.Header().Set("Allow", "DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	action := parts[1]
	switch action {
	case "transitions":
		m.handleRecordTransitions(w, r, info)
	case "generate":
		m.handleGenerate(w, r, info)
	case "prune":
		m.handlePrune(w, r, info)
	case "export":
		m.handleExport(w, r, info)
	case "stats":
		m.handleModelStats(w, r, info)
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleRecordTransitions merges a batch of observed edges into a model's
// persisted matrix. The merge accumulates counts in the database, so
// concurrent training requests against the same model never lose each
// other's edges.
func (m *ModelAPI) handleRecordTransitions(w http.ResponseWriter, r *http.Request, info store.ModelInfo) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req TransitionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if len(req.Edges) == 0 {
		respondWithError(w, http.StatusBadRequest, "At least one edge is required")
		return
	}

	if err := m.store.MergeTransitions(r.Context(), info, req.Edges); err != nil {
		if errors.Is(err, markov.ErrUnknownSymbol) {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Rejected edge list: %v", err))
			return
		}
		m.logger.Error("Failed to merge transitions", "name", info.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Recording failed: %v", err))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleGenerate produces a sequence from a persisted model.
func (m *ModelAPI) handleGenerate(w http.ResponseWriter, r *http.Request, info store.ModelInfo) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	var opts []markov.GenerateOption
	switch req.DeadEndPolicy {
	case "", "renormalize":
		// Default policy.
	case "stop":
		opts = append(opts, markov.WithDeadEndPolicy(markov.DeadEndStop))
	case "error":
		opts = append(opts, markov.WithDeadEndPolicy(markov.DeadEndError))
	default:
		respondWithError(w, http.StatusBadRequest, "dead_end_policy must be one of: renormalize, stop, error")
		return
	}

	model, err := m.store.LoadModel(r.Context(), info.Name)
	if err != nil {
		m.logger.Error("Failed to load model for generation", "name", info.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load model: %v", err))
		return
	}

	var sequence []string
	if req.Start != nil {
		sequence, err = model.GenerateFrom(*req.Start, req.Length, opts...)
	} else {
		sequence, err = model.Generate(req.Length, opts...)
	}
	if err != nil {
		switch {
		case errors.Is(err, markov.ErrUnknownSymbol),
			errors.Is(err, markov.ErrInvalidLength):
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid generation request: %v", err))
		case errors.Is(err, markov.ErrEmptyModel):
			respondWithError(w, http.StatusConflict, "Model has no recorded transitions yet")
		case errors.Is(err, markov.ErrDeadEnd):
			respondWithError(w, http.StatusConflict, fmt.Sprintf("Generation hit a dead end: %v", err))
		default:
			m.logger.Error("Generation failed", "name", info.Name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Generation failed: %v", err))
		}
		return
	}

	if sequence == nil {
		sequence = []string{}
	}
	respondWithJSON(w, http.StatusOK, GenerateResponse{Sequence: sequence})
}

// handlePrune removes rare transitions from a persisted snapshot.
func (m *ModelAPI) handlePrune(w http.ResponseWriter, r *http.Request, info store.ModelInfo) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if err := m.store.PruneModel(r.Context(), info, req.MinCount); err != nil {
		m.logger.Error("Failed to prune model", "name", info.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Pruning failed: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExport streams a model's JSON snapshot to the client.
func (m *ModelAPI) handleExport(w http.ResponseWriter, r *http.Request, info store.ModelInfo) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", info.Name))
	if err := m.store.ExportModel(r.Context(), info, w); err != nil {
		m.logger.Error("Failed to export model", "name", info.Name, "error", err)
	}
}

// handleModelStats reports matrix statistics for one model.
func (m *ModelAPI) handleModelStats(w http.ResponseWriter, r *http.Request, info store.ModelInfo) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	model, err := m.store.LoadModel(r.Context(), info.Name)
	if err != nil {
		m.logger.Error("Failed to load model for stats", "name", info.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load model: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, model.Stats())
}

// handleImport imports a model from an uploaded JSON file.
func (m *ModelAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := m.store.ImportModel(r.Context(), r.Body); err != nil {
		m.logger.Error("Failed to import model", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleStats reports database-wide statistics.
func (m *ModelAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := m.store.GetStats(r.Context())
	if err != nil {
		m.logger.Error("Failed to get store stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
