// Package httpapi serves transcript progress as Server-Sent Events and
// answers questions over JSON.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
	"github.com/anatolykoptev/go_vidqa/internal/qa"
	"github.com/anatolykoptev/go_vidqa/internal/transcript"
	"github.com/anatolykoptev/go_vidqa/internal/videoid"
)

// Runner starts a transcript run.
type Runner interface {
	Run(ctx context.Context, url string) iter.Seq[progress.Event]
}

// Asker answers a question about a transcript.
type Asker interface {
	Ask(ctx context.Context, transcript, question string) (string, error)
}

// Server holds the handlers' collaborators. Asker may be nil.
type Server struct {
	Runner Runner
	Store  transcript.Store
	Asker  Asker
}

// New builds the fiber app with every route registered.
func New(s *Server) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "vidqa",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		IdleTimeout:           2 * time.Minute,
		ErrorHandler:          errorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(engine.FormatMetrics())
	})

	api := app.Group("/api")
	api.Get("/transcript", s.events)
	api.Get("/transcript/status", s.status)
	api.Post("/ask", s.ask)
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// events streams one pipeline run as SSE. A client disconnect surfaces as a
// failed flush, which stops ranging and lets the run wind down.
func (s *Server) events(c *fiber.Ctx) error {
	// Query values alias the request buffer, which is recycled before the
	// stream writer runs.
	url := strings.Clone(c.Query("url"))
	if url == "" {
		return fiber.NewError(http.StatusBadRequest, "url query parameter is required")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := context.WithoutCancel(c.UserContext())
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for ev := range s.Runner.Run(ctx, url) {
			if err := writeEvent(w, ev); err != nil {
				slog.Debug("httpapi: client went away", slog.Any("error", err))
				return
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, ev progress.Event) error {
	data, err := json.Marshal(eventPayload(ev))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", progress.Name(ev), data); err != nil {
		return err
	}
	return w.Flush()
}

type percentPayload struct {
	Percent int `json:"percent"`
}

type donePayload struct {
	VideoID    string `json:"video_id"`
	Transcript string `json:"transcript"`
	Cached     bool   `json:"cached"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func eventPayload(ev progress.Event) any {
	switch ev := ev.(type) {
	case progress.DownloadProgress:
		return percentPayload{Percent: ev.Percent}
	case progress.TranscriptionProgress:
		return percentPayload{Percent: ev.Percent}
	case progress.Done:
		return donePayload{VideoID: ev.VideoID, Transcript: ev.Transcript, Cached: ev.Cached}
	case progress.Error:
		return errorPayload{Error: ev.Message()}
	}
	return nil
}

// status reports whether a transcript is cached, without starting any work.
func (s *Server) status(c *fiber.Ctx) error {
	id, ok := videoid.Extract(c.Query("url"))
	if !ok {
		return fiber.NewError(http.StatusBadRequest, "no video identifier found in url")
	}
	_, cached := s.Store.Lookup(c.UserContext(), id)
	return c.JSON(fiber.Map{"video_id": id, "cached": cached})
}

type askRequest struct {
	URL      string `json:"url"`
	Question string `json:"question"`
}

type askResponse struct {
	VideoID string `json:"video_id"`
	Answer  string `json:"answer"`
}

func (s *Server) ask(c *fiber.Ctx) error {
	if s.Asker == nil {
		return fiber.NewError(http.StatusServiceUnavailable, qa.ErrNotConfigured.Error())
	}
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	id, ok := videoid.Extract(req.URL)
	if !ok {
		return fiber.NewError(http.StatusBadRequest, "no video identifier found in url")
	}
	text, ok := s.Store.Lookup(c.UserContext(), id)
	if !ok {
		return fiber.NewError(http.StatusConflict, qa.ErrNoTranscript.Error())
	}

	answer, err := s.Asker.Ask(c.UserContext(), text, req.Question)
	switch {
	case errors.Is(err, qa.ErrEmptyQuestion):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case err != nil:
		slog.Warn("httpapi: ask failed", slog.String("video_id", id), slog.Any("error", err))
		return fiber.NewError(http.StatusBadGateway, "the language model could not answer")
	}
	return c.JSON(askResponse{VideoID: id, Answer: answer})
}
