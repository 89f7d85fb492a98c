package handlers

import (
	"net/http"

	"gamesync/services"

	"github.com/gin-gonic/gin"
)

type FeatureHandler struct {
	access *services.AccessService
}

func NewFeatureHandler(access *services.AccessService) *FeatureHandler {
	return &FeatureHandler{access: access}
}

func (h *FeatureHandler) CheckFeature(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	feature := c.Param("feature")
	allowed, err := h.access.CanAccess(c.Request.Context(), identity.UID, feature)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feature": feature, "allowed": allowed})
}

func (h *FeatureHandler) SetPlan(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.SetPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uid := c.Param("uid")
	if err := h.access.ChangePlan(c.Request.Context(), identity, uid, &req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"uid": uid, "plan": req.Plan})
}
