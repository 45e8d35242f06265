package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ledger/app/factory"
	"github.com/vibast-solutions/ms-go-ledger/app/mapper"
	"github.com/vibast-solutions/ms-go-ledger/app/provider"
	"github.com/vibast-solutions/ms-go-ledger/app/service"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

type PaymentController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("ledger-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreatePayment(ctx echo.Context) error {
	req, err := types.NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.CreatePayment(ctx.Request().Context(), req)
	if err != nil {
		return c.writePaymentError(ctx, err, "Create payment failed")
	}

	return ctx.JSON(http.StatusCreated, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *PaymentController) GetTransaction(ctx echo.Context) error {
	req, err := types.NewGetTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetTransaction(ctx.Request().Context(), req.Id)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get transaction failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *PaymentController) ListTransactions(ctx echo.Context) error {
	req, err := types.NewListTransactionsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListTransactions(ctx.Request().Context(), req)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List transactions failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListTransactionsResponse{Transactions: mapper.TransactionsToResponse(items)})
}

func (c *PaymentController) RefundPayment(ctx echo.Context) error {
	req, err := types.NewRefundPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.RefundPayment(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		case errors.Is(err, service.ErrInvalidAmount),
			errors.Is(err, service.ErrRefundNotAllowed),
			errors.Is(err, service.ErrRefundExceedsRemaining):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			return c.writePaymentError(ctx, err, "Refund payment failed")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *PaymentController) HandleProviderCallback(ctx echo.Context) error {
	req, err := types.NewHandleProviderCallbackRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	_, err = c.paymentService.HandleProviderCallback(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProviderUnsupported),
			errors.Is(err, service.ErrCallbackRejected),
			errors.Is(err, service.ErrInvalidRequest):
			// No detail leaks to unauthenticated senders.
			return c.writeError(ctx, http.StatusBadRequest, "invalid callback")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle provider callback failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	// Unknown transactions also get a 200, so providers stop redelivering.
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Provider callback processed"})
}

// writePaymentError maps the orchestration error taxonomy onto HTTP. A
// retryable provider failure is a 503 the caller may retry; a definitive
// provider rejection is a 502; a ledger divergence stays an opaque 500.
func (c *PaymentController) writePaymentError(ctx echo.Context, err error, message string) error {
	var providerErr *provider.Error

	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrProviderUnsupported):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		return c.writeError(ctx, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, service.ErrTransactionAlreadyExists):
		return c.writeError(ctx, http.StatusConflict, err.Error())
	case errors.As(err, &providerErr):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn(message)
		if providerErr.Retryable {
			return c.writeError(ctx, http.StatusServiceUnavailable, "payment provider unavailable")
		}
		return c.writeError(ctx, http.StatusBadGateway, "payment provider rejected the request")
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(message)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
