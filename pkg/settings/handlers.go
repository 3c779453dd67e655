package settings

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	settingService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	setting, err := h.settingService.Retrieve(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, setting))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := UpdateSettingsPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	setting, err := h.settingService.Retrieve(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	if params.FetchIntervalSeconds != nil {
		setting.FetchInterval = time.Duration(*params.FetchIntervalSeconds) * time.Second
	}
	if params.MinRefetchDelaySeconds != nil {
		setting.MinRefetchDelay = time.Duration(*params.MinRefetchDelaySeconds) * time.Second
	}
	if params.RetryBackoffBaseSeconds != nil {
		setting.RetryBackoffBase = time.Duration(*params.RetryBackoffBaseSeconds) * time.Second
	}
	if params.SolverURL != nil {
		setting.SolverURL = *params.SolverURL
	}

	setting, err = h.settingService.Update(ctx, setting)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, setting))
}
