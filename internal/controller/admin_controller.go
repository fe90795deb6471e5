package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ledger-api/internal/service"
)

type AdminController struct {
	adminService service.AdminService
}

func NewAdminController(adminService service.AdminService) *AdminController {
	return &AdminController{adminService: adminService}
}

// @Summary List pending withdrawals
// @Tags admin
// @Produce json
// @Param limit query int false "Max entries"
// @Success 200 {object} service.PendingWithdrawalsResponse
// @Failure 403 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/admin/withdrawals [get]
func (c *AdminController) ListPendingWithdrawals(ctx *gin.Context) {
	adminID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	response, err := c.adminService.ListPendingWithdrawals(ctx.Request.Context(), adminID, limit)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}
	if !response.Success {
		respondBusinessError(ctx, response.ErrorCode, response.ErrorMessage)
		return
	}

	ctx.JSON(http.StatusOK, response)
}

type ProcessWithdrawalRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject manual"`
	Reason string `json:"reason"`
}

// @Summary Decide a pending withdrawal
// @Description Approve, reject or mark for manual payout a pending withdrawal
// @Tags admin
// @Accept json
// @Produce json
// @Param transactionId path string true "Transaction ID"
// @Param request body ProcessWithdrawalRequest true "Decision"
// @Success 200 {object} service.ProcessWithdrawalResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/admin/withdrawals/{transactionId} [post]
func (c *AdminController) ProcessWithdrawal(ctx *gin.Context) {
	adminID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	var req ProcessWithdrawalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	response, err := c.adminService.ProcessWithdrawal(ctx.Request.Context(), &service.ProcessWithdrawalRequest{
		AdminID:       adminID,
		TransactionID: ctx.Param("transactionId"),
		Action:        req.Action,
		Reason:        req.Reason,
	})
	if err != nil {
		respondInternalError(ctx, err)
		return
	}
	if !response.Success {
		respondBusinessError(ctx, response.ErrorCode, response.ErrorMessage)
		return
	}

	ctx.JSON(http.StatusOK, response)
}

// @Summary Gateway account balance
// @Tags admin
// @Produce json
// @Success 200 {object} service.GatewayBalanceResponse
// @Failure 403 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/admin/gateway/balance [get]
func (c *AdminController) GetGatewayBalance(ctx *gin.Context) {
	adminID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	response, err := c.adminService.GetGatewayBalance(ctx.Request.Context(), adminID)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}
	if !response.Success {
		respondBusinessError(ctx, response.ErrorCode, response.ErrorMessage)
		return
	}

	ctx.JSON(http.StatusOK, response)
}

// @Summary Run the daily-return accrual now
// @Description Trigger the daily-return accrual pass outside its schedule
// @Tags admin
// @Produce json
// @Success 200 {object} service.RunAccrualsResponse
// @Failure 403 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/admin/accruals/run [post]
func (c *AdminController) RunAccruals(ctx *gin.Context) {
	adminID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	response, err := c.adminService.RunAccruals(ctx.Request.Context(), adminID)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}
	if !response.Success {
		respondBusinessError(ctx, response.ErrorCode, response.ErrorMessage)
		return
	}

	ctx.JSON(http.StatusOK, response)
}
