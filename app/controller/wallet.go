package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ledger/app/factory"
	"github.com/vibast-solutions/ms-go-ledger/app/mapper"
	"github.com/vibast-solutions/ms-go-ledger/app/service"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

type WalletController struct {
	walletService  *service.WalletService
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewWalletController(walletService *service.WalletService, paymentService *service.PaymentService) *WalletController {
	return &WalletController{
		walletService:  walletService,
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("wallet-controller"),
	}
}

func (c *WalletController) GetWallet(ctx echo.Context) error {
	req, err := types.NewGetWalletRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.walletService.Balance(ctx.Request().Context(), req.AccountId)
	if err != nil {
		if errors.Is(err, service.ErrWalletNotFound) {
			return writeError(ctx, http.StatusNotFound, "wallet not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get wallet failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.WalletEnvelopeResponse{Wallet: mapper.WalletToResponse(item)})
}

func (c *WalletController) Payout(ctx echo.Context) error {
	req, err := types.NewPayoutRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.Payout(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidAmount):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInsufficientBalance):
			return writeError(ctx, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, service.ErrTransactionAlreadyExists):
			return writeError(ctx, http.StatusConflict, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Payout failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)})
}

func writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
