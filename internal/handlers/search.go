package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/rooksgc/rooksgc-dev-server/internal/api/middleware"
	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

// searchWindow is how much recent history a channel search scans.
const searchWindow = 1000

var searchWordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopWords are common words to exclude from search
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"it": true, "that": true, "this": true, "with": true, "at": true,
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Query   string           `json:"query"`
	Results []models.Message `json:"results"`
	Total   int              `json:"total"`
}

// tokenize extracts searchable words from text.
func tokenize(text string) []string {
	words := searchWordRegex.FindAllString(strings.ToLower(text), -1)
	words = lo.Filter(lo.Uniq(words), func(w string, _ int) bool {
		return len(w) >= 2 && !stopWords[w]
	})

	// Limit to 5 tokens
	if len(words) > 5 {
		words = words[:5]
	}
	return words
}

// matchesAll reports whether text contains every token as a word.
func matchesAll(text string, tokens []string) bool {
	return lo.Every(searchWordRegex.FindAllString(strings.ToLower(text), -1), tokens)
}

// SearchChannel finds messages in a channel's recent history containing
// every word of ?q=, newest first.
func (h *Handler) SearchChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := pathID(r, "id")
	if err != nil {
		h.Error(w, r, "search_channel", err)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, r, "search_channel", apperr.Validation("query parameter 'q' is required"))
		return
	}
	if len(query) > 100 {
		h.Error(w, r, "search_channel", apperr.Validation("query too long (max 100 chars)"))
		return
	}
	limit := parseLimit(r)

	tokens := tokenize(query)
	if len(tokens) == 0 {
		h.OK(w, http.StatusOK, "", SearchResponse{Query: query, Results: []models.Message{}})
		return
	}

	history, err := h.social.ChannelMessages(r.Context(), channelID, middleware.GetUserIDFromContext(r.Context()), searchWindow, 0)
	if err != nil {
		h.Error(w, r, "search_channel", err)
		return
	}

	results := lo.Filter(history, func(m models.Message, _ int) bool {
		return matchesAll(m.Text, tokens)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	h.OK(w, http.StatusOK, "", SearchResponse{
		Query:   query,
		Results: results,
		Total:   len(results),
	})
}
