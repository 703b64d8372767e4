package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gm-agent-org/gm-genai/pkg/api/dto"
	"github.com/gm-agent-org/gm-genai/pkg/api/service"
	"github.com/gm-agent-org/gm-genai/pkg/runtime/permission"
)

// RunHandler handles run-related requests.
type RunHandler struct {
	svc *service.RunService
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(svc *service.RunService) *RunHandler {
	return &RunHandler{svc: svc}
}

// fail maps service errors onto status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrRunActive):
		status = http.StatusConflict
	}
	c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}

// Create godoc
// @Summary      Run a session
// @Description  Run a prompt to completion, or start it in the background when async is set
// @Tags         run
// @Accept       json
// @Produce      json
// @Param        request body dto.RunRequest true "Run request"
// @Success      200 {object} dto.RunResponse
// @Success      202 {object} dto.RunAcceptedResponse
// @Failure      400 {object} dto.ErrorResponse
// @Failure      500 {object} dto.ErrorResponse
// @Router       /api/v1/runs [post]
func (h *RunHandler) Create(c *gin.Context) {
	var req dto.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Async {
		run, err := h.svc.Start(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, dto.RunAcceptedResponse{ID: run.ID, Status: string(run.Status)})
		return
	}

	resp, err := h.svc.Run(c.Request.Context(), req)
	if err != nil && resp == nil {
		fail(c, err)
		return
	}
	if err != nil {
		// the run finished but its edits could not be applied
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": resp.Result, "applied": resp.Applied})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// List godoc
// @Summary      List runs
// @Tags         run
// @Produce      json
// @Success      200 {object} dto.RunListResponse
// @Router       /api/v1/runs [get]
func (h *RunHandler) List(c *gin.Context) {
	ids, err := h.svc.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RunListResponse{Runs: ids})
}

// Get godoc
// @Summary      Get run result
// @Tags         run
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} types.RunResult
// @Failure      404 {object} dto.ErrorResponse
// @Router       /api/v1/runs/{id} [get]
func (h *RunHandler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Messages godoc
// @Summary      Get run transcript
// @Description  Rebuild the message history of a run from its event log
// @Tags         run
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} dto.MessagesResponse
// @Failure      404 {object} dto.ErrorResponse
// @Router       /api/v1/runs/{id}/messages [get]
func (h *RunHandler) Messages(c *gin.Context) {
	id := c.Param("id")
	msgs, err := h.svc.Messages(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessagesResponse{ID: id, Messages: msgs})
}

// Cancel godoc
// @Summary      Cancel a run
// @Tags         run
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} dto.RunAcceptedResponse
// @Failure      404 {object} dto.ErrorResponse
// @Router       /api/v1/runs/{id}/cancel [post]
func (h *RunHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Cancel(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RunAcceptedResponse{ID: id, Status: "cancelling"})
}

// Delete godoc
// @Summary      Delete a run
// @Tags         run
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} dto.DeleteResponse
// @Failure      404 {object} dto.ErrorResponse
// @Router       /api/v1/runs/{id} [delete]
func (h *RunHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.DeleteResponse{Deleted: true})
}

// Permissions godoc
// @Summary      List pending permission requests
// @Tags         permission
// @Produce      json
// @Success      200 {object} dto.PermissionListResponse
// @Router       /api/v1/permissions [get]
func (h *RunHandler) Permissions(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PermissionListResponse{Requests: h.svc.Permissions()})
}

// Permission godoc
// @Summary      Respond to permission request
// @Description  Approve or deny a pending tool call
// @Tags         permission
// @Accept       json
// @Produce      json
// @Param        id path string true "Request ID"
// @Param        request body dto.PermissionResponseRequest true "Permission response"
// @Failure      400 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Router       /api/v1/permissions/{id} [post]
func (h *RunHandler) Permission(c *gin.Context) {
	var req dto.PermissionResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.svc.RespondPermission(c.Param("id"), req.Approved, req.Always); err != nil {
		if errors.Is(err, permission.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "approved": req.Approved})
}
