package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"giftvault/internal/models/request_models"
	"giftvault/internal/services"
	"giftvault/pkg/utils"
)

type CardController struct {
	cardService services.ICardService
}

func NewCardController(cardService services.ICardService) *CardController {
	return &CardController{
		cardService: cardService,
	}
}

// performer pulls the authenticated caller's id out of the context, if the
// route ran behind the JWT middleware.
func performer(c *gin.Context) *uuid.UUID {
	raw := c.GetString("user_id")
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// CheckBalance godoc
// @Summary Check a gift card's balance
// @Description Read-only lookup of balance, design and active flag by redemption code
// @Tags Cards
// @Produce json
// @Param code path string true "Redemption code"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Router /cards/{code}/balance [get]
func (ct *CardController) CheckBalance(c *gin.Context) {
	resp, err := ct.cardService.CheckBalance(c.Request.Context(), c.Param("code"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, resp, "Balance retrieved")
}

// Redeem godoc
// @Summary Redeem value from a gift card
// @Description Debits the card atomically; fails on insufficient balance or inactive card
// @Tags Cards
// @Accept json
// @Produce json
// @Param request body request_models.RedeemRequest true "Redeem payload"
// @Success 200 {object} utils.APIResponse
// @Failure 422 {object} utils.APIResponse
// @Security BearerAuth
// @Router /cards/redeem [post]
func (ct *CardController) Redeem(c *gin.Context) {
	var req request_models.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	resp, err := ct.cardService.Redeem(c.Request.Context(), req, performer(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, resp, "Card redeemed")
}

// Recharge godoc
// @Summary Recharge a gift card
// @Description Settles the recharge amount across the offered funding sources, then credits the card
// @Tags Cards
// @Accept json
// @Produce json
// @Param request body request_models.RechargeRequest true "Recharge payload"
// @Success 200 {object} utils.APIResponse
// @Failure 422 {object} utils.APIResponse
// @Security BearerAuth
// @Router /cards/recharge [post]
func (ct *CardController) Recharge(c *gin.Context) {
	var req request_models.RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	resp, err := ct.cardService.Recharge(c.Request.Context(), req, performer(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, resp, "Card recharged")
}

// Purchase godoc
// @Summary Purchase a new gift card
// @Description Issues a card and settles the purchase; the card activates once funding completes
// @Tags Cards
// @Accept json
// @Produce json
// @Param request body request_models.PurchaseRequest true "Purchase payload"
// @Success 200 {object} utils.APIResponse
// @Failure 422 {object} utils.APIResponse
// @Security BearerAuth
// @Router /cards/purchase [post]
func (ct *CardController) Purchase(c *gin.Context) {
	var req request_models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	resp, err := ct.cardService.Purchase(c.Request.Context(), req, performer(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, resp, "Card purchased")
}

// History godoc
// @Summary List a card's transaction history
// @Tags Cards
// @Produce json
// @Param code path string true "Redemption code"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /cards/{code}/transactions [get]
func (ct *CardController) History(c *gin.Context) {
	resp, err := ct.cardService.History(c.Request.Context(), c.Param("code"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, resp, "Transaction history retrieved")
}

// Audit godoc
// @Summary Verify a card's ledger integrity
// @Description Replays the transaction history and compares against the stored balance
// @Tags Cards
// @Produce json
// @Param code path string true "Redemption code"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /cards/{code}/audit [get]
func (ct *CardController) Audit(c *gin.Context) {
	resp, err := ct.cardService.Audit(c.Request.Context(), c.Param("code"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, resp, "Ledger audit complete")
}

// Deactivate godoc
// @Summary Deactivate a gift card
// @Description Soft-deactivates the card; history is retained
// @Tags Cards
// @Produce json
// @Param code path string true "Redemption code"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/cards/{code}/deactivate [post]
func (ct *CardController) Deactivate(c *gin.Context) {
	if err := ct.cardService.Deactivate(c.Request.Context(), c.Param("code")); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, "Card deactivated")
}
