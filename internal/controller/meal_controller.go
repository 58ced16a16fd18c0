package controller

import (
	"nutrilens-be/internal/pkg/serverutils"
	"nutrilens-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IMealController interface {
	RegisterRoutes(r fiber.Router)
	Recent(ctx *fiber.Ctx) error
	Summary(ctx *fiber.Ctx) error
}

type mealController struct {
	mealService service.IMealService
}

func NewMealController(mealService service.IMealService) IMealController {
	return &mealController{
		mealService: mealService,
	}
}

func (c *mealController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/meal/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get("", c.Recent)
	h.Get("summary", c.Summary)
}

func (c *mealController) Recent(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	limit := ctx.QueryInt("limit", 20)

	res, err := c.mealService.Recent(ctx.Context(), userId, limit)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list meals", res))
}

func (c *mealController) Summary(ctx *fiber.Ctx) error {
	userIdStr := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	days := ctx.QueryInt("days", 7)

	res, err := c.mealService.DailySummary(ctx.Context(), userId, days)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get daily summary", res))
}
