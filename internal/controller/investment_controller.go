package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ledger-api/internal/service"
)

type InvestmentController struct {
	investments service.InvestmentService
}

func NewInvestmentController(investments service.InvestmentService) *InvestmentController {
	return &InvestmentController{investments: investments}
}

// @Summary List active investment plans
// @Tags investments
// @Produce json
// @Success 200 {array} models.InvestmentPlan
// @Security BearerAuth
// @Router /api/v1/plans [get]
func (c *InvestmentController) ListPlans(ctx *gin.Context) {
	plans, err := c.investments.ListPlans(ctx.Request.Context())
	if err != nil {
		respondInternalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"plans": plans})
}

type CreateInvestmentRequest struct {
	PlanID string          `json:"plan_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// @Summary Create an investment
// @Description Fund a position in a plan from the available balance
// @Tags investments
// @Accept json
// @Produce json
// @Param request body CreateInvestmentRequest true "Investment request"
// @Success 201 {object} service.CreateInvestmentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/investments [post]
func (c *InvestmentController) CreateInvestment(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	var req CreateInvestmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	response, err := c.investments.CreateInvestment(ctx.Request.Context(), &service.CreateInvestmentRequest{
		UserID: userID,
		PlanID: req.PlanID,
		Amount: req.Amount,
	})
	if err != nil {
		respondInternalError(ctx, err)
		return
	}
	if !response.Success {
		respondBusinessError(ctx, response.ErrorCode, response.ErrorMessage)
		return
	}

	ctx.JSON(http.StatusCreated, response)
}

// @Summary List the user's investments
// @Tags investments
// @Produce json
// @Success 200 {array} models.UserInvestment
// @Security BearerAuth
// @Router /api/v1/investments [get]
func (c *InvestmentController) ListInvestments(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	investments, err := c.investments.ListUserInvestments(ctx.Request.Context(), userID)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"investments": investments})
}

// @Summary List commissions received
// @Tags investments
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.AffiliateCommission
// @Security BearerAuth
// @Router /api/v1/commissions [get]
func (c *InvestmentController) ListCommissions(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	commissions, err := c.investments.ListUserCommissions(ctx.Request.Context(), userID, limit, offset)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"commissions": commissions})
}
