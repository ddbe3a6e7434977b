package task

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alanyang/call-dispatch/internal/domain/intake"
	domaintask "github.com/alanyang/call-dispatch/internal/domain/task"
	tasksvc "github.com/alanyang/call-dispatch/internal/service/task"
	"github.com/alanyang/call-dispatch/internal/transport/apierr"
	"github.com/alanyang/call-dispatch/internal/transport/tenant"
)

const (
	formField         = "file"
	IdempotencyHeader = "Idempotency-Key"
)

func Register(rg *gin.RouterGroup, svc *tasksvc.Service) {
	rg.POST("/upload", uploadTasks(svc))
	rg.GET("/", listTasks(svc))
	rg.GET("/agent/:agentId", listAgentTasks(svc))
	rg.PATCH("/:id/status", updateTaskStatus(svc))
	rg.DELETE("/:id", deleteTask(svc))
}

func uploadTasks(svc *tasksvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		in := tasksvc.UploadInput{IdempotencyKey: c.GetHeader(IdempotencyHeader)}

		fh, err := c.FormFile(formField)
		switch {
		case errors.Is(err, http.ErrMissingFile):
			// no file: the service reports it alongside the other file checks
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		default:
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			defer f.Close()

			in.File = intake.File{Name: fh.Filename, Size: fh.Size, ContentType: fh.Header.Get("Content-Type")}
			in.Body = f
		}

		res, err := svc.Upload(c.Request.Context(), tenant.FromContext(c), in)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

func listTasks(svc *tasksvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *domaintask.Status
		if v := c.Query("status"); v != "" {
			s := domaintask.Status(v)
			status = &s
		}

		tasks, err := svc.List(c.Request.Context(), tenant.FromContext(c), status)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		if tasks == nil {
			tasks = []domaintask.Task{}
		}
		c.JSON(http.StatusOK, tasks)
	}
}

func listAgentTasks(svc *tasksvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID, err := uuid.Parse(c.Param("agentId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent id"})
			return
		}

		tasks, err := svc.ListByAgent(c.Request.Context(), tenant.FromContext(c), agentID)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		if tasks == nil {
			tasks = []domaintask.Task{}
		}
		c.JSON(http.StatusOK, tasks)
	}
}

type updateStatusReq struct {
	Status domaintask.Status `json:"status" binding:"required"`
}

func updateTaskStatus(svc *tasksvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		var req updateStatusReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		t, err := svc.UpdateStatus(c.Request.Context(), tenant.FromContext(c), id, req.Status)
		if err != nil {
			apierr.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func deleteTask(svc *tasksvc.Service) gin.HandlerFunc {
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
		c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
	}
}
