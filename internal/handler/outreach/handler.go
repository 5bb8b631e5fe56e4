package outreach

import (
	"context"
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/physio-outreach/internal/model"
	"github.com/jwalitptl/physio-outreach/internal/service/outreach"
	"github.com/jwalitptl/physio-outreach/pkg/errors"
	"github.com/jwalitptl/physio-outreach/pkg/httputil"
)

// Scanner runs one outreach scan.
type Scanner interface {
	Run(ctx context.Context) (*outreach.Report, error)
}

type Handler struct {
	scanner Scanner
}

func NewHandler(scanner Scanner) *Handler {
	return &Handler{scanner: scanner}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/outreach/candidates", h.ListCandidates)
}

type listQuery struct {
	Details bool `form:"details"`
}

// ListCandidates runs a scan on every call; results are not cached.
func (h *Handler) ListCandidates(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid query parameters", err))
		return
	}

	report, err := h.scanner.Run(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		if stderrors.Is(err, outreach.ErrMalformedRecord) {
			httputil.RespondWithError(c, errors.Internal(err))
			return
		}
		httputil.RespondWithError(c, errors.Unavailable("outreach scan unavailable", err))
		return
	}

	var data interface{} = report.Results()
	if q.Details {
		data = report.Candidates
	}
	httputil.RespondWithMeta(c, data, statsMeta(report.Stats))
}

func statsMeta(s model.RunStats) gin.H {
	return gin.H{
		"scanned":         s.Scanned,
		"no_appointments": s.NoAppointments,
		"not_eligible":    s.NotEligible,
		"topic_rejected":  s.TopicRejected,
		"no_improvement":  s.NoImprovement,
		"emitted":         s.Emitted,
		"duration_ms":     s.Duration.Milliseconds(),
	}
}
