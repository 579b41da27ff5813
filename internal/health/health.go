// Package health probes the speech and language providers a call depends
// on. Probes run concurrently; one failing provider does not cancel the
// others.
package health

import (
	"context"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Checker is a named provider probe.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Report is the JSON body of GET /health.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (r Report) OK() bool { return r.Status == "ok" }

type Handler struct {
	checkers []Checker
}

func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Run probes every checker concurrently, each under its own deadline.
func (h *Handler) Run(ctx context.Context) Report {
	results := make([]error, len(h.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range h.checkers {
		i, c := i, c
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, checkTimeout)
			defer cancel()
			results[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	for i, c := range h.checkers {
		if err := results[i]; err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
		} else {
			rep.Checks[c.Name] = "ok"
		}
	}
	return rep
}

// LogStartup runs the probes once and logs each result.
func (h *Handler) LogStartup(ctx context.Context) {
	rep := h.Run(ctx)
	names := make([]string, 0, len(rep.Checks))
	for name := range rep.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Printf("health: %s %s", name, rep.Checks[name])
	}
}

// Healthz is a liveness probe that always returns 200 OK.
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Health reports provider readiness; 503 when any probe fails.
func (h *Handler) Health(c echo.Context) error {
	rep := h.Run(c.Request().Context())
	status := http.StatusOK
	if !rep.OK() {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, rep)
}
