package agent

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagent "github.com/alanyang/call-dispatch/internal/domain/agent"
	agentsvc "github.com/alanyang/call-dispatch/internal/service/agent"
	"github.com/alanyang/call-dispatch/internal/service/rebalance"
	"github.com/alanyang/call-dispatch/internal/transport/apierr"
	"github.com/alanyang/call-dispatch/internal/transport/tenant"
)

func Register(rg *gin.RouterGroup, svc *agentsvc.Service, rb *rebalance.Service) {
	rg.POST("/", createAgent(svc))
	rg.GET("/", listAgents(svc))
	rg.POST("/redistribute", redistribute(rb))
	rg.GET("/:id", getAgent(svc))
	rg.PUT("/:id", updateAgent(svc))
	rg.PATCH("/:id/active", setActive(svc))
	rg.DELETE("/:id", deleteAgent(svc))
}

type createAgentReq struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	CountryCode  string `json:"country_code"`
	MobileNumber string `json:"mobile_number" binding:"required"`
}

func createAgent(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAgentReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		a, err := svc.Create(c.Request.Context(), tenant.FromContext(c), agentsvc.CreateInput{
			Name:         req.Name,
			Email:        req.Email,
			CountryCode:  req.CountryCode,
			MobileNumber: req.MobileNumber,
		})
		if err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

func listAgents(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		agents, err := svc.List(c.Request.Context(), tenant.FromContext(c))
		if err != nil {
			apierr.Write(c, err)
			return
		}
		if agents == nil {
			agents = []domainagent.Agent{}
		}
		c.JSON(http.StatusOK, agents)
	}
}

func getAgent(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		a, err := svc.Get(c.Request.Context(), tenant.FromContext(c), id)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func updateAgent(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		var patch domainagent.Patch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		a, err := svc.Update(c.Request.Context(), tenant.FromContext(c), id, patch)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

type setActiveReq struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func setActive(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		var req setActiveReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		a, err := svc.SetActive(c.Request.Context(), tenant.FromContext(c), id, *req.IsActive)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func deleteAgent(svc *agentsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		if err := svc.Delete(c.Request.Context(), tenant.FromContext(c), id); err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Agent deleted successfully"})
	}
}

func redistribute(rb *rebalance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := rb.Rebalance(c.Request.Context(), tenant.FromContext(c), rebalance.TriggerManual)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Tasks redistributed", "distribution": res})
	}
}
