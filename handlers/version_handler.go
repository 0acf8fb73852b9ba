package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dandi-api/helper"
	"dandi-api/middleware"
	"dandi-api/models"
	"dandi-api/services"
)

type VersionHandler struct {
	versionService services.VersionService
	Helper         *helper.HTTPHelper
}

func NewVersionHandler(versionService services.VersionService, h *helper.HTTPHelper) *VersionHandler {
	return &VersionHandler{versionService: versionService, Helper: h}
}

func (h *VersionHandler) GetVersions(c *gin.Context) {
	params, ok := bindListParams(c, h.Helper)
	if !ok {
		return
	}

	versions, total, err := h.versionService.List(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}
	described, err := h.versionService.Describe(c.Request.Context(), versions)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}

	c.JSON(http.StatusOK, helper.GeneratePaging(h.Helper, c, params, total, described))
}

func (h *VersionHandler) GetVersion(c *gin.Context) {
	h.sendDetail(c, http.StatusOK, c.Param("version"))
}

func (h *VersionHandler) UpdateVersion(c *gin.Context) {
	var req models.UpdateVersionRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}

	v, err := h.versionService.UpdateDraftMetadata(c.Request.Context(), middleware.CurrentPrincipal(c),
		c.Param("id"), c.Param("version"), req)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}

	h.sendDetail(c, http.StatusOK, v.Version)
}

func (h *VersionHandler) PublishVersion(c *gin.Context) {
	published, err := h.versionService.Publish(c.Request.Context(), middleware.CurrentPrincipal(c),
		c.Param("id"), c.Param("version"))
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}

	h.sendDetail(c, http.StatusOK, published.Version)
}

func (h *VersionHandler) GetValidation(c *gin.Context) {
	report, err := h.versionService.ValidationReport(c.Request.Context(), c.Param("id"), c.Param("version"))
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// sendDetail reloads a version of the dandiset in the path and renders it
// with its metadata.
func (h *VersionHandler) sendDetail(c *gin.Context, status int, version string) {
	v, err := h.versionService.Get(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}
	detail, err := h.versionService.Detail(c.Request.Context(), v)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}
	c.JSON(status, detail)
}
