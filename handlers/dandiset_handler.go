package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dandi-api/helper"
	"dandi-api/middleware"
	"dandi-api/models"
	"dandi-api/services"
)

type DandisetHandler struct {
	dandisetService services.DandisetService
	Helper          *helper.HTTPHelper
}

func NewDandisetHandler(dandisetService services.DandisetService, h *helper.HTTPHelper) *DandisetHandler {
	return &DandisetHandler{dandisetService: dandisetService, Helper: h}
}

func (h *DandisetHandler) CreateDandiset(c *gin.Context) {
	var req models.CreateDandisetRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}

	dandiset, err := h.dandisetService.Create(c.Request.Context(), middleware.CurrentPrincipal(c), req)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}

	response, err := h.dandisetService.Get(c.Request.Context(), dandiset.Identifier())
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

func (h *DandisetHandler) GetDandisets(c *gin.Context) {
	params, ok := bindListParams(c, h.Helper)
	if !ok {
		return
	}

	dandisets, total, err := h.dandisetService.List(c.Request.Context(), params)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}

	c.JSON(http.StatusOK, helper.GeneratePaging(h.Helper, c, params, total, dandisets))
}

func (h *DandisetHandler) GetDandiset(c *gin.Context) {
	response, err := h.dandisetService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func bindListParams(c *gin.Context, h *helper.HTTPHelper) (models.ListParams, bool) {
	var params models.ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.SendBadRequest(c, err.Error())
		return params, false
	}
	params.Normalize()
	return params, true
}
