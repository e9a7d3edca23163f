package tracking

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Reader is the read side of Store.
type Reader interface {
	Experiments(ctx context.Context) ([]Experiment, error)
	Runs(ctx context.Context, experiment string) ([]Run, error)
	Run(ctx context.Context, id string) (Run, error)
	Summary(ctx context.Context, experiment string) (map[string]float64, error)
}

// NewServer returns the HTTP API over r.
func NewServer(r Reader, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	api := e.Group("/api")
	api.GET("/experiments", ExperimentsHandler(r))
	api.GET("/experiments/:name/runs", RunsHandler(r))
	api.GET("/experiments/:name/summary", SummaryHandler(r))
	api.GET("/runs/:id", RunHandler(r))

	return e
}

func ExperimentsHandler(r Reader) echo.HandlerFunc {
	return func(c echo.Context) error {
		exps, err := r.Experiments(c.Request().Context())
		if err != nil {
			return err
		}
		if exps == nil {
			exps = []Experiment{}
		}

		return c.JSON(http.StatusOK, exps)
	}
}

func RunsHandler(r Reader) echo.HandlerFunc {
	return func(c echo.Context) error {
		runs, err := r.Runs(c.Request().Context(), c.Param("name"))
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return errors.Wrap(ErrExperimentNotFound, c.Param("name"))
		}

		return c.JSON(http.StatusOK, runs)
	}
}

func SummaryHandler(r Reader) echo.HandlerFunc {
	return func(c echo.Context) error {
		summary, err := r.Summary(c.Request().Context(), c.Param("name"))
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, summary)
	}
}

func RunHandler(r Reader) echo.HandlerFunc {
	return func(c echo.Context) error {
		run, err := r.Run(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, run)
	}
}

type errorBody struct {
	Message string `json:"message"`
}

func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := http.StatusText(code)
		var httpErr *echo.HTTPError
		switch {
		case errors.Is(err, ErrRunNotFound), errors.Is(err, ErrExperimentNotFound):
			code, message = http.StatusNotFound, err.Error()
		case errors.As(err, &httpErr):
			code = httpErr.Code
			message = http.StatusText(code)
		default:
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if err := c.JSON(code, errorBody{Message: message}); err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

// Serve runs the server on addr until ctx is done, then shuts it down within
// grace.
func Serve(ctx context.Context, e *echo.Echo, addr string, grace time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		return errors.Wrapf(err, "serve %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serve %s", addr)
	}

	return nil
}
