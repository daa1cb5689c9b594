package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"solana-copytrade-lab/internal/configstore"
	"solana-copytrade-lab/internal/copytrade"
	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/storage"
)

const (
	defaultOrderLimit = 50
	maxOrderLimit     = 500
)

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status         string                 `json:"status"`
	Uptime         string                 `json:"uptime"`
	Classification *ClassificationSummary `json:"classification,omitempty"`
	CopyTrade      *CopyTradeSummary      `json:"copytrade,omitempty"`
}

// ClassificationSummary describes the latest snapshot without its rows.
type ClassificationSummary struct {
	CohortID      string                `json:"cohort_id"`
	Status        domain.SnapshotStatus `json:"status"`
	Wallets       int                   `json:"wallets"`
	TrackedTokens int                   `json:"tracked_tokens"`
	StaleTokens   int                   `json:"stale_tokens"`
	ComputedAt    int64                 `json:"computed_at"`
}

// CopyTradeSummary aggregates follower state.
type CopyTradeSummary struct {
	Followers      int `json:"followers"`
	WatchedWallets int `json:"watched_wallets"`
	OpenPositions  int `json:"open_positions"`
	ActiveOrders   int `json:"active_orders"`
}

// SessionResponse pairs a follower's live state with its tradeable flag.
type SessionResponse struct {
	copytrade.FollowerStatus
	TradeableNow *bool `json:"tradeable_now,omitempty"`
}

func (s *Server) getStatus(c *gin.Context) {
	resp := StatusResponse{
		Status: "running",
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
	}

	if s.classifier != nil {
		snap := s.classifier.Snapshot()
		resp.Classification = &ClassificationSummary{
			CohortID:      snap.CohortID,
			Status:        snap.Status,
			Wallets:       len(snap.Classifications),
			TrackedTokens: snap.TrackedTokens,
			StaleTokens:   len(snap.StaleTokens),
			ComputedAt:    snap.ComputedAt,
		}
	}

	if s.controller != nil {
		st := s.controller.Status()
		resp.CopyTrade = &CopyTradeSummary{
			Followers:      len(st.Followers),
			WatchedWallets: st.WatchedWallets,
			OpenPositions:  st.OpenPositions,
			ActiveOrders:   st.ActiveOrders,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// listClassifications returns the latest snapshot, optionally filtered by ?tier=.
func (s *Server) listClassifications(c *gin.Context) {
	snap := s.classifier.Snapshot()

	if q := c.Query("tier"); q != "" {
		tier := domain.Tier(strings.ToUpper(q))
		if tier.Rank() == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier " + strconv.Quote(q)})
			return
		}
		filtered := snap.Classifications[:0:0]
		for _, wc := range snap.Classifications {
			if wc.Tier == tier {
				filtered = append(filtered, wc)
			}
		}
		snap.Classifications = filtered
	}

	c.JSON(http.StatusOK, snap)
}

func (s *Server) getReport(c *gin.Context) {
	report, err := s.classifier.Report(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getWalletHistory(c *gin.Context) {
	records, err := s.classifier.WalletHistory(c.Request.Context(), c.Param("wallet"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": c.Param("wallet"), "data": records})
}

func (s *Server) getCopyTradeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) getSession(c *gin.Context) {
	sessionID := c.Param("session")
	st, err := s.controller.FollowerStatus(sessionID)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := SessionResponse{FollowerStatus: st}
	if s.configs != nil {
		if ok, err := s.configs.TradeableNow(c.Request.Context(), sessionID); err == nil {
			resp.TradeableNow = &ok
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listOrders(c *gin.Context) {
	limit := defaultOrderLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxOrderLimit {
			limit = parsed
		}
	}

	orders, err := s.orders.ListBySession(c.Request.Context(), c.Param("session"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders, "limit": limit})
}

func (s *Server) emergencyStop(c *gin.Context) {
	sessionID := c.Param("session")
	if err := s.controller.EmergencyStop(c.Request.Context(), sessionID); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.WithField("session", sessionID).Warn("emergency stop requested over HTTP")
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "emergency": true})
}

func (s *Server) emergencyStopAll(c *gin.Context) {
	if err := s.controller.EmergencyStop(c.Request.Context(), ""); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Warn("emergency stop requested for all sessions over HTTP")
	c.JSON(http.StatusOK, gin.H{"emergency": true})
}

func (s *Server) resume(c *gin.Context) {
	sessionID := c.Param("session")
	if err := s.controller.Resume(c.Request.Context(), sessionID); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.WithField("session", sessionID).Info("resume requested over HTTP")
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "emergency": false})
}

func (s *Server) listConfigs(c *gin.Context) {
	configs, err := s.configs.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": configs})
}

// getConfig returns the active version, or ?version=N.
func (s *Server) getConfig(c *gin.Context) {
	sessionID := c.Param("session")

	var (
		cfg *domain.CopyTradeConfig
		err error
	)
	if v := c.Query("version"); v != "" {
		version, perr := strconv.Atoi(v)
		if perr != nil || version <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid version"})
			return
		}
		cfg, err = s.configs.GetVersion(c.Request.Context(), sessionID, version)
	} else {
		cfg, err = s.configs.Get(c.Request.Context(), sessionID)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) saveConfig(c *gin.Context) {
	var cfg domain.CopyTradeConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, err := s.configs.Save(c.Request.Context(), &cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// fail maps domain and storage errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	var cerr *domain.ConfigurationError
	switch {
	case errors.As(err, &cerr):
		c.JSON(http.StatusBadRequest, gin.H{"error": cerr.Error(), "field": cerr.Field})
	case configstore.IsConfigurationError(err), errors.Is(err, storage.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, copytrade.ErrUnknownSession):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
