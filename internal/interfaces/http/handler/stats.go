package handler

import (
	"errors"
	"fmt"
	"regexp"

	appstats "github.com/enercompare/backend/internal/application/stats"
	"github.com/enercompare/backend/internal/domain/shared"
	"github.com/enercompare/backend/internal/infrastructure/config"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var monthValue = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("month", func(fl validator.FieldLevel) bool {
			return monthValue.MatchString(fl.Field().String())
		})
	}
}

type monthRangeQuery struct {
	From string `form:"from" binding:"required,month"`
	To   string `form:"to" binding:"required,month"`
}

// StatsHandler proxies aggregated production statistics through the tiered
// cache. Responses carry an X-Cache header naming the tier that answered.
type StatsHandler struct {
	BaseHandler
	stats        *appstats.Service
	logger       *zap.Logger
	cacheControl string
}

// NewStatsHandler creates a stats handler
func NewStatsHandler(stats *appstats.Service, cfg config.CacheConfig, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logger,
		cacheControl: fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d",
			int(cfg.TTL.Seconds()), int(cfg.StaleWindow.Seconds())),
	}
}

// RegisterRoutes registers stats routes on the API group
func (h *StatsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats/production/monthly", h.MonthlyProduction)
}

// MonthlyProduction serves aggregated monthly production data for the
// from/to month range
func (h *StatsHandler) MonthlyProduction(c *gin.Context) {
	var query monthRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, "from and to must be YYYY-MM months, from <= to")
		return
	}

	data, tier, err := h.stats.MonthlyProduction(c.Request.Context(), query.From, query.To)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			h.BadRequest(c, "from and to must be YYYY-MM months, from <= to")
			return
		}
		h.logger.Warn("production stats unavailable", zap.Error(err))
		h.HandleError(c, err)
		return
	}

	c.Header("X-Cache", string(tier))
	c.Header("Cache-Control", h.cacheControl)
	h.Raw(c, data)
}
