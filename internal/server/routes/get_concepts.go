package routes

import (
	"net/http"

	"github.com/knowledgesnode/backend/internal/server/middleware"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetRelatedConceptsHandler lists concepts connected to a concept by
// similarity or by a stated relationship, strongest first.
func GetRelatedConceptsHandler(c echo.Context) error {
	type relatedConceptsData struct {
		ConceptID int64 `param:"id" validate:"required,min=1"`
		Limit     int   `query:"limit" validate:"min=0"`
	}

	type relatedConceptsResponse struct {
		Concept common.Concept          `json:"concept"`
		Related []common.RelatedConcept `json:"related"`
	}

	data := new(relatedConceptsData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	limit := clampLimit(data.Limit)

	concept, err := app.Store.GetConcept(ctx, data.ConceptID)
	if err != nil {
		status := statusFor(err)
		return c.JSON(status, messageResponse{Message: messageFor(status)})
	}
	related, err := app.Store.ListRelatedConcepts(ctx, data.ConceptID, limit)
	if err != nil {
		status := statusFor(err)
		return c.JSON(status, messageResponse{Message: messageFor(status)})
	}
	if related == nil {
		related = []common.RelatedConcept{}
	}

	if app.Mirror != nil && len(related) < limit {
		seen := make(map[int64]struct{}, len(related))
		for _, r := range related {
			seen[r.ConceptID] = struct{}{}
		}
		fromMirror, err := app.Mirror.RelatedConcepts(ctx, concept.Name, limit)
		if err != nil {
			logger.Warn("[API] Mirror lookup failed", "concept_id", concept.ID, "err", err)
		}
		for _, r := range fromMirror {
			if len(related) >= limit {
				break
			}
			if _, ok := seen[r.ConceptID]; ok || r.ConceptID == concept.ID {
				continue
			}
			seen[r.ConceptID] = struct{}{}
			related = append(related, common.RelatedConcept{
				ConceptID:    r.ConceptID,
				Name:         r.Name,
				Relationship: r.Relationship,
				Weight:       r.Weight,
			})
		}
	}

	return c.JSON(http.StatusOK, relatedConceptsResponse{
		Concept: concept,
		Related: related,
	})
}
