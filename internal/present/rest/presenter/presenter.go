package presenter

import (
	"net/http"

	errorsmod "cosmossdk.io/errors"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/domain"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      uint32 `json:"code,omitempty"`
	Codespace string `json:"codespace,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func BadRequest(c echo.Context, err error) error {
	c.Logger().Debugf("bad request: %v", err)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	c.Logger().Debugf("bad request: %s", msg)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func Unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: "bearer token required"})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func Unavailable(c echo.Context, msg string) error {
	return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: msg})
}

func InternalError(c echo.Context, err error) error {
	c.Logger().Errorf("internal error: %v", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// Error reports a usecase failure. Registered ledger errors keep their
// code on the wire; anything else is an internal error.
func Error(c echo.Context, err error) error {
	if domain.IsNotFound(err) {
		return NotFound(c, err.Error())
	}

	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	if codespace != attestlend.Codespace {
		return InternalError(c, err)
	}

	return c.JSON(StatusOf(err), errorResponse{
		Error:     err.Error(),
		Code:      code,
		Codespace: codespace,
	})
}

func StatusOf(err error) int {
	switch {
	case attestlend.ErrEpochNotFound.Is(err),
		attestlend.ErrLoanNotFound.Is(err):
		return http.StatusNotFound
	case attestlend.ErrUnauthorized.Is(err):
		return http.StatusForbidden
	case attestlend.ErrLoanNotInExpectedState.Is(err),
		attestlend.ErrNotYetDue.Is(err),
		attestlend.ErrPaused.Is(err),
		attestlend.ErrReentrantCall.Is(err):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
