package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/gcbaptista/go-autocomplete/model"
)

// SubmitRequest is the body of POST /autocomplete
type SubmitRequest struct {
	Phrase string `json:"phrase" binding:"required"`
}

// SubmitResponse echoes the phrase with its authoritative count
type SubmitResponse struct {
	Phrase string `json:"phrase"`
	Count  int64  `json:"count"`
}

// SuggestHandler handles GET /autocomplete?q=prefix&k=5.
// An empty q yields an empty list rather than the global ranking.
func (api *API) SuggestHandler(c *gin.Context) {
	prefix := c.Query("q")

	topK, result := ValidateTopK(c.Query("k"), api.settings.Search)
	if result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	if prefix == "" {
		c.JSON(http.StatusOK, []model.Suggestion{})
		return
	}

	suggestions, err := api.engine.Search(c.Request.Context(), prefix, topK)
	if err != nil {
		SendCoreError(c, "search", err)
		return
	}

	c.JSON(http.StatusOK, suggestions)
}

// SubmitHandler handles POST /autocomplete with body {"phrase": "..."}
func (api *API) SubmitHandler(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			SendStructuredValidationError(c, ValidatePhrase(req.Phrase))
			return
		}
		SendInvalidJSONError(c, err)
		return
	}

	if result := ValidatePhrase(req.Phrase); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	count, err := api.engine.Submit(c.Request.Context(), req.Phrase)
	if err != nil {
		api.logger.Warn("submission failed", "phrase", req.Phrase, "error", err)
		SendCoreError(c, "submit", err)
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{Phrase: req.Phrase, Count: count})
}
