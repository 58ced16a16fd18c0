package controller

import (
	"time"

	"nutrilens-be/internal/dto"
	"nutrilens-be/internal/pkg/serverutils"
	"nutrilens-be/internal/repository/memory"
	"nutrilens-be/internal/session"

	"github.com/gofiber/fiber/v2"
)

type ICaptureController interface {
	RegisterRoutes(r fiber.Router)
	LastImage(ctx *fiber.Ctx) error
	Speak(ctx *fiber.Ctx) error
}

type captureController struct {
	sessions *session.Manager
	captures *memory.CaptureCache
}

func NewCaptureController(sessions *session.Manager, captures *memory.CaptureCache) ICaptureController {
	return &captureController{
		sessions: sessions,
		captures: captures,
	}
}

func (c *captureController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/capture/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get("last-image", c.LastImage)
	h.Post("speak", c.Speak)
}

// LastImage serves the freshest capture for the authenticated user straight
// from the in-memory cache.
func (c *captureController) LastImage(ctx *fiber.Ctx) error {
	userId := ctx.Locals("user_id").(string)

	capture, found := c.captures.Get(userId)
	if !found {
		return serverutils.NewAppError(fiber.StatusNotFound, "no capture available")
	}

	if ctx.Query("raw") == "true" {
		ctx.Set("Content-Type", capture.MimeType)
		return ctx.Send(capture.Data)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get last image", dto.LastImageResponse{
		ImageURL: capture.ImageURL,
		TakenAt:  capture.TakenAt.Format(time.RFC3339),
	}))
}

// Speak narrates text on the user's device.
func (c *captureController) Speak(ctx *fiber.Ctx) error {
	userId := ctx.Locals("user_id").(string)

	var req dto.SpeakRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.sessions.Speak(ctx.Context(), userId, req.Text, req.VoiceID); err != nil {
		return serverutils.NewAppError(fiber.StatusBadGateway, err.Error())
	}

	return ctx.JSON(serverutils.SuccessResponse("Success trigger speech", nil))
}
