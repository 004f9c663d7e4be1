package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/crawlpix/crawlpix/internal/intent"
	"github.com/crawlpix/crawlpix/internal/search"
)

// ChatRequest is a natural-language image search against one session's index.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ChatResponse carries the conversational reply plus the ranked results.
type ChatResponse struct {
	Response  string                `json:"response"`
	Results   []search.SearchResult `json:"results"`
	Query     string                `json:"query"`
	FromCache bool                  `json:"from_cache"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		if req.SessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}

		namespace := deps.Registry.Namespace(req.SessionID)
		if namespace == "" {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", req.SessionID)
			return
		}

		parsed, err := deps.Parser.Parse(r.Context(), req.Message)
		if err != nil {
			if errors.Is(err, intent.ErrParse) {
				httpError(w, http.StatusUnprocessableEntity, "parse_error",
					"I couldn't understand that search. Try describing the image you're looking for, e.g. \"photos of mountains\".")
				return
			}
			httpError(w, http.StatusBadGateway, "api_error", "parsing query: %v", err)
			return
		}

		results, err := deps.Engine.Search(r.Context(), parsed.SearchQuery, namespace, parsed.FormatFilter)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "search failed: %v", err)
			return
		}

		response := parsed.ResponseMessage
		if response == "" {
			response = search.Summary(results)
		}

		writeJSON(w, http.StatusOK, ChatResponse{
			Response:  response,
			Results:   results,
			Query:     parsed.SearchQuery,
			FromCache: parsed.FromCache,
		})
	}
}
