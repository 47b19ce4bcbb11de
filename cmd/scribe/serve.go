package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/drafting"
	"github.com/poiesic/scribe/retrieval"
	"github.com/poiesic/scribe/workflow"
	"github.com/urfave/cli/v2"
)

// pipeline is the part of the engine the HTTP and watch adapters use.
type pipeline interface {
	Run(ctx context.Context, req workflow.Request) (core.PipelineState, error)
	RegenerateSection(ctx context.Context, content, instruction, tenantID string) (string, error)
	Search(ctx context.Context, tenantID, query string, k int, monitor retrieval.SearchMonitor) ([]*core.SearchResult, error)
}

type runRequest struct {
	Source   string `json:"source"`
	Template string `json:"template"`
	Tenant   string `json:"tenant"`
}

type regenerateRequest struct {
	Content     string `json:"content"`
	Instruction string `json:"instruction"`
	Tenant      string `json:"tenant"`
}

type searchHit struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the pipeline over HTTP",
		Action: serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "bind",
				Usage: "Address to listen on (defaults to server.bind)",
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	bind := cfg.Server.Bind
	if c.IsSet("bind") {
		bind = c.String("bind")
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	app := newServer(engine, cfg.Server.UploadDir, slog.Default())
	go func() {
		<-c.Context.Done()
		if err := app.Shutdown(); err != nil {
			slog.Error("error shutting down server", "err", err)
		}
	}()
	slog.Info("listening", "bind", bind, "uploads", cfg.Server.UploadDir)
	return app.Listen(bind)
}

var (
	errOutsideUploads = errors.New("path is outside the upload directory")
	errSourceRequired = errors.New("source is required")
)

// server adapts the pipeline to HTTP. Runs only read sources and templates
// that live under uploads, either sent as multipart files or named by a
// path relative to it.
type server struct {
	pipeline pipeline
	uploads  string
	logger   *slog.Logger
}

func newServer(p pipeline, uploadDir string, logger *slog.Logger) *fiber.App {
	s := &server{
		pipeline: p,
		uploads:  uploadDir,
		logger:   logger.With("component", "http"),
	}
	app := fiber.New(fiber.Config{
		AppName:               "scribe",
		BodyLimit:             16 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"status": "ok"})
	})
	app.Post("/runs", s.run)
	app.Post("/regenerate", s.regenerate)
	app.Get("/search", s.search)
	return app
}

func (s *server) run(ctx *fiber.Ctx) error {
	var (
		req     workflow.Request
		cleanup func()
		err     error
	)
	if strings.HasPrefix(ctx.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req, cleanup, err = s.uploadRequest(ctx)
	} else {
		req, err = s.pathRequest(ctx)
	}
	if err != nil {
		return badRequest(ctx, err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	state, err := s.pipeline.Run(ctx.UserContext(), req)
	if err != nil {
		s.logger.Warn("run failed", "run", state.RunID, "err", err)
		return ctx.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
			"state": redact(state),
		})
	}
	return ctx.JSON(redact(state))
}

// pathRequest reads a JSON body naming files already under the upload
// directory.
func (s *server) pathRequest(ctx *fiber.Ctx) (workflow.Request, error) {
	var body runRequest
	if err := ctx.BodyParser(&body); err != nil {
		return workflow.Request{}, err
	}
	if strings.TrimSpace(body.Source) == "" {
		return workflow.Request{}, errSourceRequired
	}
	source, err := s.confine(body.Source)
	if err != nil {
		return workflow.Request{}, err
	}
	req := workflow.Request{SourceRef: source, TenantID: body.Tenant}
	if body.Template != "" {
		if req.TemplateRef, err = s.confine(body.Template); err != nil {
			return workflow.Request{}, err
		}
	}
	return req, nil
}

// uploadRequest saves the multipart source and optional template into the
// upload directory. cleanup removes them once the run is over.
func (s *server) uploadRequest(ctx *fiber.Ctx) (workflow.Request, func(), error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return workflow.Request{}, nil, err
	}
	sources := form.File["source"]
	if len(sources) == 0 {
		return workflow.Request{}, nil, errSourceRequired
	}

	var saved []string
	cleanup := func() {
		for _, path := range saved {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("error removing upload", "path", path, "err", err)
			}
		}
	}
	save := func(fh *multipart.FileHeader) (string, error) {
		ext := strings.ToLower(filepath.Ext(filepath.Base(fh.Filename)))
		dest := filepath.Join(s.uploads, uuid.NewString()+ext)
		if err := ctx.SaveFile(fh, dest); err != nil {
			return "", err
		}
		saved = append(saved, dest)
		return dest, nil
	}

	req := workflow.Request{}
	if tenants := form.Value["tenant"]; len(tenants) > 0 {
		req.TenantID = tenants[0]
	}
	if req.SourceRef, err = save(sources[0]); err != nil {
		cleanup()
		return workflow.Request{}, nil, err
	}
	if templates := form.File["template"]; len(templates) > 0 {
		if req.TemplateRef, err = save(templates[0]); err != nil {
			cleanup()
			return workflow.Request{}, nil, err
		}
	}
	return req, cleanup, nil
}

// confine resolves ref against the upload directory, following symlinks,
// and rejects anything that lands outside it.
func (s *server) confine(ref string) (string, error) {
	root, err := filepath.EvalSymlinks(s.uploads)
	if err != nil {
		return "", fmt.Errorf("upload directory: %w", err)
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errOutsideUploads, ref)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errOutsideUploads, ref)
	}
	return resolved, nil
}

// redact drops transcript text before a state leaves the server.
func redact(state core.PipelineState) core.PipelineState {
	state.Segments = nil
	return state
}

func (s *server) regenerate(ctx *fiber.Ctx) error {
	var req regenerateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return badRequest(ctx, err)
	}
	out, err := s.pipeline.RegenerateSection(ctx.UserContext(), req.Content, req.Instruction, req.Tenant)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"content": out})
}

func (s *server) search(ctx *fiber.Ctx) error {
	results, err := s.pipeline.Search(ctx.UserContext(), ctx.Query("tenant"), ctx.Query("q"), ctx.QueryInt("k", 5), nil)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{
			ID:       r.Record.ID,
			Score:    r.Score,
			Text:     r.Record.Text,
			Metadata: r.Record.Metadata,
		})
	}
	return ctx.JSON(fiber.Map{"results": hits})
}

func badRequest(ctx *fiber.Ctx, err error) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrTenantRequired),
		errors.Is(err, drafting.ErrInstructionRequired),
		errors.Is(err, core.ErrUnsupportedDocument),
		errors.Is(err, core.ErrEmptyDocument),
		errors.Is(err, core.ErrInvalidTemplate):
		return fiber.StatusBadRequest
	case errors.Is(err, core.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
