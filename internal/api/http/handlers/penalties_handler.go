package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/watchworthy-auth/internal/api/dto"
	"github.com/spec-kit/watchworthy-auth/internal/auth"
	"github.com/spec-kit/watchworthy-auth/internal/clock"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/service"
	apperrors "github.com/spec-kit/watchworthy-auth/pkg/util"
)

// PenaltiesHandler exposes the penalty ledger to moderators.
type PenaltiesHandler struct {
	ledger *service.PenaltyLedger
	gate   *auth.AccessGate
	clock  clock.Clock
}

// NewPenaltiesHandler constructs handler.
func NewPenaltiesHandler(ledger *service.PenaltyLedger, gate *auth.AccessGate, clk clock.Clock) *PenaltiesHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &PenaltiesHandler{ledger: ledger, gate: gate, clock: clk}
}

// List handles GET /penalties.
func (h *PenaltiesHandler) List(c *fiber.Ctx) error {
	penalties, err := h.ledger.ListAll(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewPenaltyResponses(penalties, h.clock.Now())})
}

// Mine handles GET /penalties/me.
func (h *PenaltiesHandler) Mine(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	return h.listFor(c, principal.Claims.SubjectID)
}

// ListForUser handles GET /penalties/:userID.
func (h *PenaltiesHandler) ListForUser(c *fiber.Ctx) error {
	return h.listFor(c, c.Params("userID"))
}

func (h *PenaltiesHandler) listFor(c *fiber.Ctx, subjectID string) error {
	penalties, err := h.ledger.ListForSubject(c.UserContext(), subjectID)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewPenaltyResponses(penalties, h.clock.Now())})
}

// Issue handles POST /penalties.
func (h *PenaltiesHandler) Issue(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	var req dto.IssuePenaltyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.DurationDays != nil && (*req.DurationDays < 0 || *req.DurationDays > domain.MaxOverrideDays) {
		return apperrors.NewValidationError("duration_days out of range",
			map[string]any{"min": 0, "max": domain.MaxOverrideDays})
	}

	penalty, err := h.ledger.Issue(c.UserContext(), service.IssueInput{
		SubjectID:    req.UserID,
		Type:         req.Type,
		Severity:     req.Severity,
		Reason:       req.Reason,
		Notes:        req.Notes,
		IssuerID:     principal.Claims.SubjectID,
		OverrideDays: req.DurationDays,
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewPenaltyResponse(*penalty, h.clock.Now())})
}

// Resolve handles PATCH /penalties/:id. Notes are read from the body or the notes query parameter.
func (h *PenaltiesHandler) Resolve(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	var req dto.ResolvePenaltyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}
	}
	if req.Notes == nil {
		if notes := c.Query("notes"); notes != "" {
			req.Notes = &notes
		}
	}

	penalty, err := h.ledger.Resolve(c.UserContext(), c.Params("id"), principal.Claims.SubjectID, req.Notes)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewPenaltyResponse(*penalty, h.clock.Now())})
}

// Delete handles DELETE /penalties/:id.
func (h *PenaltiesHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	if _, err := h.ledger.Delete(c.UserContext(), c.Params("id"), principal.Claims.SubjectID); err != nil {
		return apperrors.MapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Reconcile handles POST /penalties/reconcile.
func (h *PenaltiesHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.ledger.Reconcile(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": report})
}

// CheckRestriction handles GET /restrictions/check?types=a,b. A blocked caller gets 403 ACTION_RESTRICTED.
func (h *PenaltiesHandler) CheckRestriction(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	types, err := parsePenaltyTypes(c.Query("types"))
	if err != nil {
		return err
	}
	if err := h.gate.Restrict(c.UserContext(), principal.Claims.SubjectID, types...); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.RestrictionCheckResponse{Allowed: true, Checked: types}})
}

func parsePenaltyTypes(raw string) ([]domain.PenaltyType, error) {
	var types []domain.PenaltyType
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t := domain.PenaltyType(part)
		if !t.IsValid() {
			return nil, apperrors.NewValidationError("unknown penalty type", map[string]any{"type": part})
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil, apperrors.NewValidationError("types query parameter required", nil)
	}
	return types, nil
}
