package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dandi-api/helper"
	"dandi-api/middleware"
	"dandi-api/models"
	"dandi-api/services"
)

type AssetHandler struct {
	assetService services.AssetService
	Helper       *helper.HTTPHelper
}

func NewAssetHandler(assetService services.AssetService, h *helper.HTTPHelper) *AssetHandler {
	return &AssetHandler{assetService: assetService, Helper: h}
}

func (h *AssetHandler) CreateAsset(c *gin.Context) {
	var req models.CreateAssetRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}

	asset, err := h.assetService.Create(c.Request.Context(), middleware.CurrentPrincipal(c),
		c.Param("id"), c.Param("version"), req)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}

	h.sendDetail(c, http.StatusCreated, asset.UUID.String())
}

func (h *AssetHandler) GetAssets(c *gin.Context) {
	params, ok := bindListParams(c, h.Helper)
	if !ok {
		return
	}

	assets, total, err := h.assetService.List(c.Request.Context(), c.Param("id"), c.Param("version"), params)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}

	results := make([]models.AssetResponse, len(assets))
	for i := range assets {
		results[i] = services.AssetResponse(&assets[i])
	}
	c.JSON(http.StatusOK, helper.GeneratePaging(h.Helper, c, params, total, results))
}

func (h *AssetHandler) GetAsset(c *gin.Context) {
	h.sendDetail(c, http.StatusOK, c.Param("asset_id"))
}

func (h *AssetHandler) UpdateAsset(c *gin.Context) {
	var req models.UpdateAssetRequest
	if !h.Helper.BindJSON(c, &req) {
		return
	}

	asset, err := h.assetService.Update(c.Request.Context(), middleware.CurrentPrincipal(c),
		c.Param("id"), c.Param("version"), c.Param("asset_id"), req)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}

	// a published asset is replaced by a copy with a new id
	h.sendDetail(c, http.StatusOK, asset.UUID.String())
}

func (h *AssetHandler) sendDetail(c *gin.Context, status int, assetID string) {
	asset, err := h.assetService.Get(c.Request.Context(), c.Param("id"), c.Param("version"), assetID)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}
	detail, err := h.assetService.Detail(asset)
	if err != nil {
		h.Helper.SendError(c, err)
		return
	}
	c.JSON(status, detail)
}
