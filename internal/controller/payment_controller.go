package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ledger-api/internal/service"
)

type PaymentController struct {
	deposits    service.DepositService
	withdrawals service.WithdrawalService
}

func NewPaymentController(deposits service.DepositService, withdrawals service.WithdrawalService) *PaymentController {
	return &PaymentController{
		deposits:    deposits,
		withdrawals: withdrawals,
	}
}

type CreateDepositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	CPF    string          `json:"cpf" binding:"omitempty,cpfformat"`
}

// @Summary Initiate a PIX deposit
// @Description Create a PIX charge and a pending deposit for the authenticated user
// @Tags payments
// @Accept json
// @Produce json
// @Param request body CreateDepositRequest true "Deposit request"
// @Success 201 {object} service.InitiateDepositResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/deposits [post]
func (c *PaymentController) CreateDeposit(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	var req CreateDepositRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	response, err := c.deposits.InitiateDeposit(ctx.Request.Context(), &service.InitiateDepositRequest{
		UserID: userID,
		Amount: req.Amount,
		CPF:    req.CPF,
	})
	if err != nil {
		respondInternalError(ctx, err)
		return
	}
	if !response.Success {
		// The requires_cpf flag rides along so the client can prompt for the
		// document instead of showing a generic failure.
		ctx.JSON(statusForErrorCode(response.ErrorCode), response)
		return
	}

	ctx.JSON(http.StatusCreated, response)
}

type CreateWithdrawalRequest struct {
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	PixKey     string          `json:"pix_key" binding:"required"`
	PixKeyType string          `json:"pix_key_type" binding:"required,pixkeytype"`
}

// @Summary Request a PIX withdrawal
// @Description Debit the gross amount and request a PIX transfer of the net amount
// @Tags payments
// @Accept json
// @Produce json
// @Param request body CreateWithdrawalRequest true "Withdrawal request"
// @Success 201 {object} service.RequestWithdrawalResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/withdrawals [post]
func (c *PaymentController) CreateWithdrawal(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	var req CreateWithdrawalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	response, err := c.withdrawals.RequestWithdrawal(ctx.Request.Context(), &service.RequestWithdrawalRequest{
		UserID:     userID,
		Amount:     req.Amount,
		PixKey:     req.PixKey,
		PixKeyType: req.PixKeyType,
	})
	if err != nil {
		respondInternalError(ctx, err)
		return
	}
	if !response.Success {
		ctx.JSON(statusForErrorCode(response.ErrorCode), response)
		return
	}

	ctx.JSON(http.StatusCreated, response)
}
