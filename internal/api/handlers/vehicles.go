package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rchmtmaulana/skripsi-avc/internal/logging"
	"github.com/rchmtmaulana/skripsi-avc/internal/models"
	"github.com/rchmtmaulana/skripsi-avc/internal/services/persistence"
)

// VehicleSource is the live view of the fusion engine.
type VehicleSource interface {
	Vehicles() []models.Vehicle
	Current() (models.Vehicle, bool)
	OverheadPanel() models.OverheadUpdate
	FrontalPanel() models.FrontalUpdate
}

type VehicleHandler struct {
	source VehicleSource
	store  persistence.Store
}

// NewVehicleHandler builds the handler; store may be nil, in which case the
// transaction endpoints answer 503.
func NewVehicleHandler(source VehicleSource, store persistence.Store) *VehicleHandler {
	return &VehicleHandler{source: source, store: store}
}

// @Summary List tracked vehicles
// @Tags vehicles
// @Produce json
// @Router /vehicles [get]
func (h *VehicleHandler) List(c *gin.Context) {
	vs := h.source.Vehicles()
	c.JSON(http.StatusOK, gin.H{"vehicles": vs, "count": len(vs)})
}

// @Summary Vehicle currently in transaction
// @Tags vehicles
// @Produce json
// @Failure 404 {object} map[string]string
// @Router /vehicles/current [get]
func (h *VehicleHandler) Current(c *gin.Context) {
	v, ok := h.source.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "no vehicle in transaction",
			"overhead": h.source.OverheadPanel(),
			"frontal":  h.source.FrontalPanel(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vehicle":  v,
		"overhead": h.source.OverheadPanel(),
		"frontal":  h.source.FrontalPanel(),
	})
}

func parseQuery(c *gin.Context) (persistence.Query, error) {
	var q persistence.Query
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, errors.New("since must be an RFC3339 timestamp")
		}
		q.Since = t
	}
	q.VehicleID = c.Query("vehicle_id")
	return q, nil
}

// @Summary Stored transactions, newest first
// @Tags transactions
// @Produce json
// @Param limit query int false "max rows (default 100)"
// @Param since query string false "RFC3339 lower bound on exit time"
// @Param vehicle_id query string false "filter by vehicle"
// @Router /transactions [get]
func (h *VehicleHandler) Transactions(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": persistence.ErrNoStore.Error()})
		return
	}
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txs, err := h.store.List(c.Request.Context(), q)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list transactions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// @Summary Processing-duration statistics
// @Tags transactions
// @Produce json
// @Param since query string false "RFC3339 lower bound on exit time"
// @Router /transactions/stats [get]
func (h *VehicleHandler) TransactionStats(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": persistence.ErrNoStore.Error()})
		return
	}
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := persistence.Stats(c.Request.Context(), h.store, q)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to compute transaction stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, st)
}
