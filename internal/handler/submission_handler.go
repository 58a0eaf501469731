package handler

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/devarena/devarena-api/internal/dto"
	"github.com/devarena/devarena-api/internal/middleware"
	"github.com/devarena/devarena-api/internal/service"
	"github.com/devarena/devarena-api/internal/utils"
	"github.com/devarena/devarena-api/pkg/judge"
)

// SubmissionHandler manages the code judging endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. Submit and run
// are rate limited per user; the all-users question listing is staff only.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/submit", middleware.RateLimit("submissions:submit", 10, time.Minute), h.submit)
	router.Post("/run", middleware.RateLimit("submissions:run", 30, time.Minute), h.run)
	router.Get("/recent", h.recent)
	router.Get("/stats", h.stats)
	router.Get("/solved", h.solved)
	router.Get("/check/:questionId", h.check)
	router.Get("/question/:questionId", middleware.RequireRole("admin", "teacher"), h.listByQuestion)
	router.Get("/user/question/:questionId", h.listByUserAndQuestion)
	router.Delete("/question/:questionId", h.deleteByQuestion)
	router.Get("/:id", h.getByID)
	router.Get("", h.list)
}

// submit accepts code for asynchronous judging and returns the Running record
// the client polls until a terminal status appears.
func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmitCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.SubmitCode(c.Context(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission queued", submission)
}

// run judges against the question's public test cases synchronously without
// persisting anything.
func (h *SubmissionHandler) run(c *fiber.Ctx) error {
	var payload dto.RunCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	outcome, err := h.service.RunCode(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "code executed", outcome)
}

func (h *SubmissionHandler) getByID(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	submissions, err := h.service.ListByUser(c.Context(), userIDFromContext(c), limit)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) recent(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	submissions, err := h.service.ListRecent(c.Context(), userIDFromContext(c), limit)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "recent submissions retrieved", submissions)
}

func (h *SubmissionHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.UserStats(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission stats retrieved", stats)
}

func (h *SubmissionHandler) solved(c *fiber.Ctx) error {
	ids, err := h.service.SolvedQuestionIDs(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "solved questions retrieved", fiber.Map{"question_ids": ids})
}

func (h *SubmissionHandler) check(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	solved, err := h.service.HasSolved(c.Context(), userIDFromContext(c), questionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "solved status retrieved", fiber.Map{"solved": solved})
}

func (h *SubmissionHandler) listByQuestion(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	submissions, err := h.service.ListByQuestion(c.Context(), questionID, limit)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) listByUserAndQuestion(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.service.ListByUserAndQuestion(c.Context(), userIDFromContext(c), questionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) deleteByQuestion(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	deleted, err := h.service.DeleteUserQuestionSubmissions(c.Context(), userIDFromContext(c), questionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions deleted", fiber.Map{"deleted": deleted})
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoPublicTestCases):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, judge.ErrEntryPointNotFound):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, judge.ErrLanguageNotSupported):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
