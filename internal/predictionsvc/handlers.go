package predictionsvc

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/internal/errval"
)

// MaxBatchSize bounds one predict-batch request.
const MaxBatchSize = 100

type predictResponse struct {
	Success     bool                `json:"success"`
	Error       string              `json:"error,omitempty"`
	Predictions *domain.Predictions `json:"predictions,omitempty"`
}

type batchItem struct {
	TaskID      string              `json:"task_id"`
	Success     bool                `json:"success"`
	Predictions *domain.Predictions `json:"predictions,omitempty"`
}

// Router mounts the service's HTTP surface.
func Router(s *Service) *gin.Engine {
	r := gin.Default()

	r.POST("/predict", func(c *gin.Context) {
		var req PredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Error("error occurred while binding predict request", "error", err)
			c.JSON(http.StatusBadRequest, predictResponse{Success: false, Error: "invalid request body"})
			return
		}
		p, err := s.Predict(req)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, predictResponse{Success: false, Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, predictResponse{Success: true, Predictions: p})
	})

	r.POST("/predict-batch", func(c *gin.Context) {
		var req struct {
			Tasks []PredictRequest `json:"tasks"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if len(req.Tasks) > MaxBatchSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "batch size exceeds 100"})
			return
		}
		results := make([]batchItem, 0, len(req.Tasks))
		for _, item := range req.Tasks {
			p, err := s.Predict(item)
			if err != nil {
				results = append(results, batchItem{TaskID: item.TaskID, Success: false})
				continue
			}
			results = append(results, batchItem{TaskID: item.TaskID, Success: true, Predictions: p})
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	})

	r.POST("/predict-priority", func(c *gin.Context) {
		var req PredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.RequestedKinds = []domain.PredictionKind{domain.KindPriority}
		p, err := s.Predict(req)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":             true,
			"calculated_priority": p.CalculatedPriority,
			"priority_score":      p.PriorityScore,
			"priority_reason":     p.PriorityReason,
			"priority_factors":    p.PriorityFactors,
		})
	})

	r.POST("/predict-duration", func(c *gin.Context) {
		var req PredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.RequestedKinds = []domain.PredictionKind{domain.KindDuration}
		p, err := s.Predict(req)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":               true,
			"predicted_duration_ms": p.PredictedDurationMs,
			"duration_confidence":   p.DurationConfidence,
		})
	})

	r.GET("/health", func(c *gin.Context) {
		if !s.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "up", "buffer_size": s.BufferLen()})
	})

	r.GET("/statistics", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Statistics())
	})

	r.POST("/training/record", func(c *gin.Context) {
		var obs domain.Observation
		if err := c.ShouldBindJSON(&obs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		s.Record(obs)
		c.JSON(http.StatusOK, gin.H{"buffer_size": s.BufferLen()})
	})

	r.POST("/training/retrain", func(c *gin.Context) {
		minRecords := 1
		if raw := c.Query("minRecords"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "minRecords must be an integer"})
				return
			}
			minRecords = parsed
		}
		trained, err := s.Retrain(minRecords)
		if err != nil {
			if errors.Is(err, errval.ErrBufferTooSmall) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trained_from": trained})
	})

	return r
}
