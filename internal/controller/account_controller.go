package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ledger-api/internal/repository"
	"ledger-api/internal/service"
)

type AccountController struct {
	balances      service.BalanceService
	checkins      service.CheckinService
	notifications service.NotificationService
}

func NewAccountController(
	balances service.BalanceService,
	checkins service.CheckinService,
	notifications service.NotificationService,
) *AccountController {
	return &AccountController{
		balances:      balances,
		checkins:      checkins,
		notifications: notifications,
	}
}

// @Summary Get profile and balances
// @Tags account
// @Produce json
// @Success 200 {object} service.ProfileResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/profile [get]
func (c *AccountController) GetProfile(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	response, err := c.balances.GetProfile(ctx.Request.Context(), userID)
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

// @Summary List transactions
// @Tags account
// @Produce json
// @Param type query string false "Transaction type filter"
// @Param status query string false "Transaction status filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} service.TransactionListResponse
// @Security BearerAuth
// @Router /api/v1/transactions [get]
func (c *AccountController) ListTransactions(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	filter := repository.TransactionFilter{
		Type:   ctx.Query("type"),
		Status: ctx.Query("status"),
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	response, err := c.balances.ListTransactions(ctx.Request.Context(), userID, filter, limit, offset)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, response)
}

type TransferAccumulatedRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// @Summary Transfer accumulated earnings to the spendable balance
// @Tags account
// @Accept json
// @Produce json
// @Param request body TransferAccumulatedRequest true "Transfer request"
// @Success 200 {object} service.TransferAccumulatedResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/balance/transfer [post]
func (c *AccountController) TransferAccumulated(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	var req TransferAccumulatedRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	response, err := c.balances.TransferAccumulated(ctx.Request.Context(), &service.TransferAccumulatedRequest{
		UserID: userID,
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

	ctx.JSON(http.StatusOK, response)
}

// @Summary Claim the daily check-in reward
// @Tags account
// @Produce json
// @Success 200 {object} service.CheckinResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/checkins [post]
func (c *AccountController) Checkin(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	response, err := c.checkins.Checkin(ctx.Request.Context(), userID)
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

// @Summary List recent check-ins
// @Tags account
// @Produce json
// @Param limit query int false "Max entries"
// @Success 200 {array} models.DailyCheckin
// @Security BearerAuth
// @Router /api/v1/checkins [get]
func (c *AccountController) ListCheckins(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "30"))
	checkins, err := c.checkins.History(ctx.Request.Context(), userID, limit)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"checkins": checkins})
}

// @Summary List notifications
// @Tags account
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Notification
// @Security BearerAuth
// @Router /api/v1/notifications [get]
func (c *AccountController) ListNotifications(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	notifications, err := c.notifications.List(ctx.Request.Context(), userID, limit, offset)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// @Summary Mark a notification as read
// @Tags account
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/notifications/{id}/read [post]
func (c *AccountController) MarkNotificationRead(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	if err := c.notifications.MarkRead(ctx.Request.Context(), userID, ctx.Param("id")); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid notification",
			Message: err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"read": true})
}

// @Summary Count unread notifications
// @Tags account
// @Produce json
// @Success 200 {object} map[string]int64
// @Security BearerAuth
// @Router /api/v1/notifications/unread-count [get]
func (c *AccountController) CountUnreadNotifications(ctx *gin.Context) {
	userID, ok := authedUserID(ctx)
	if !ok {
		return
	}

	count, err := c.notifications.CountUnread(ctx.Request.Context(), userID)
	if err != nil {
		respondInternalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"unread": count})
}
