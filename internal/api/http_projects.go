package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"yourank/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func (h *HTTPHandler) ListProjects(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	projects, err := h.repo.ListProjects(ctx, requestUser.ID)
	if err != nil {
		logrus.WithError(err).Error("failed to list projects")
		InternalError(c, "failed to load projects")
		return
	}
	if projects == nil {
		projects = []entity.DbProject{}
	}

	c.JSON(http.StatusOK, entity.ProjectListResponse{Projects: projects})
}

func (h *HTTPHandler) CreateProject(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.ProjectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		MissingField(c, "name")
		return
	}

	project := &entity.DbProject{
		UserID:      requestUser.ID,
		Name:        name,
		Domain:      strings.TrimSpace(req.Domain),
		Description: strings.TrimSpace(req.Description),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.CreateProject(ctx, project); err != nil {
		logrus.WithError(err).Error("failed to create project")
		InternalError(c, "failed to create project")
		return
	}

	c.JSON(http.StatusCreated, entity.ProjectDetailResponse{Project: *project})
}

func (h *HTTPHandler) UpdateProject(c *gin.Context) {
	project, ok := h.loadOwnedProject(c)
	if !ok {
		return
	}

	var req entity.ProjectUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	var updates entity.ProjectUpdates
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			BadRequest(c, ErrCodeInvalidRequest, "name must not be empty")
			return
		}
		updates.Name = &trimmed
	}
	if req.Domain != nil {
		trimmed := strings.TrimSpace(*req.Domain)
		updates.Domain = &trimmed
	}
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		updates.Description = &trimmed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if updates.IsEmpty() {
		c.JSON(http.StatusOK, entity.ProjectDetailResponse{Project: *project})
		return
	}

	if err := h.repo.UpdateProject(ctx, project.ID, updates); err != nil {
		logrus.WithError(err).WithField("id", project.ID).Error("failed to update project")
		InternalError(c, "failed to update project")
		return
	}

	updated, err := h.repo.GetProject(ctx, project.ID)
	if err != nil {
		logrus.WithError(err).WithField("id", project.ID).Error("failed to reload project")
		InternalError(c, "failed to load updated project")
		return
	}

	c.JSON(http.StatusOK, entity.ProjectDetailResponse{Project: *updated})
}

func (h *HTTPHandler) DeleteProject(c *gin.Context) {
	project, ok := h.loadOwnedProject(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.DeleteProject(ctx, project.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeProjectNotFound, "project not found")
			return
		}
		logrus.WithError(err).WithField("id", project.ID).Error("failed to delete project")
		InternalError(c, "failed to delete project")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) loadOwnedProject(c *gin.Context) (*entity.DbProject, bool) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return nil, false
	}

	idValue := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseUint(idValue, 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid project id")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	project, err := h.repo.GetProject(ctx, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeProjectNotFound, "project not found")
			return nil, false
		}
		logrus.WithError(err).WithField("id", id).Error("failed to load project")
		InternalError(c, "failed to load project")
		return nil, false
	}

	if project.UserID != requestUser.ID {
		NotFound(c, ErrCodeProjectNotFound, "project not found")
		return nil, false
	}

	return project, true
}
