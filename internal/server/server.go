// Package server exposes a Session over HTTP: the raw POST body is the
// prompt and the response body is the generated text.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/gptserve/internal/logger"
	"github.com/samcharles93/gptserve/internal/session"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*session.Generation, error)
}

// Handler serves one request at a time against a Generator.
type Handler struct {
	gen     Generator
	sem     *semaphore.Weighted
	maxBody int64
	log     logger.Logger
}

// NewHandler returns a handler that rejects bodies above maxBody bytes.
func NewHandler(gen Generator, maxBody int64, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		gen:     gen,
		sem:     semaphore.NewWeighted(1),
		maxBody: maxBody,
		log:     log,
	}
}

// Result is the outcome of one request. Kind is KindNone on success.
type Result struct {
	Status int
	Body   string
	Kind   ErrorKind
	Err    error
}

func failed(err *RequestError) Result {
	return Result{Status: http.StatusInternalServerError, Kind: err.Kind, Err: err}
}

// Handle runs the whole request cycle while holding the handler's semaphore.
func (h *Handler) Handle(ctx context.Context, r *http.Request) (res Result) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return failed(&RequestError{Kind: KindTransport, Err: err})
	}
	defer h.sem.Release(1)

	defer func() {
		if p := recover(); p != nil {
			res = failed(newRequestError(KindInternal, "panic: %v", p))
		}
	}()

	prompt, rerr := h.readPrompt(r)
	if rerr != nil {
		return failed(rerr)
	}

	gen, err := h.gen.Generate(ctx, prompt)
	if err != nil {
		return failed(classify(err))
	}
	return Result{Status: http.StatusOK, Body: gen.Text()}
}

func (h *Handler) readPrompt(r *http.Request) (string, *RequestError) {
	n := r.ContentLength
	if n < 0 || (n == 0 && r.Header.Get(echo.HeaderContentLength) == "") {
		return "", newRequestError(KindTransport, "missing Content-Length")
	}
	if n > h.maxBody {
		return "", newRequestError(KindTransport, "Content-Length %d exceeds limit %d", n, h.maxBody)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r.Body, buf); err != nil {
			return "", newRequestError(KindTransport, "read body: %w", err)
		}
	}
	if !utf8.Valid(buf) {
		return "", newRequestError(KindDecode, "body is not valid UTF-8")
	}
	return string(buf), nil
}

func classify(err error) *RequestError {
	var se *session.StageError
	if errors.As(err, &se) {
		switch se.Stage {
		case session.StageEncode:
			return &RequestError{Kind: KindEncode, Err: err}
		case session.StageSample:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &RequestError{Kind: KindTransport, Err: err}
			}
			return &RequestError{Kind: KindSampling, Err: err}
		case session.StageDecode:
			return &RequestError{Kind: KindDetokenize, Err: err}
		}
	}
	return &RequestError{Kind: KindInternal, Err: err}
}

// Register routes POST on every path to the handler.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/", h.serve)
	e.POST("/*", h.serve)
}

func (h *Handler) serve(c *echo.Context) error {
	start := time.Now()
	log := h.log.With("request_id", uuid.NewString())

	res := h.Handle(c.Request().Context(), c.Request())
	if res.Kind != KindNone {
		log.Error("request failed", "kind", res.Kind.String(), "error", res.Err, "elapsed", time.Since(start))
		return c.NoContent(res.Status)
	}
	log.Info("request served", "bytes", len(res.Body), "elapsed", time.Since(start))
	return c.Blob(res.Status, echo.MIMETextPlainCharsetUTF8, []byte(res.Body))
}

// Config holds the listener settings.
type Config struct {
	Addr        string
	ReadTimeout time.Duration
}

// Serve listens on cfg.Addr until ctx is canceled.
func Serve(ctx context.Context, cfg Config, h *Handler) error {
	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	h.Register(e)

	sc := echo.StartConfig{
		Address: cfg.Addr,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = cfg.ReadTimeout
			srv.ReadTimeout = cfg.ReadTimeout
			h.log.Info("server running", "address", cfg.Addr)
			return nil
		},
	}
	if err := sc.Start(ctx, e); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", cfg.Addr, err)
	}
	return nil
}
