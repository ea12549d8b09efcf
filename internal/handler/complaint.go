// Package handler exposes the HTTP handlers of the complaint portal.
// This file holds the browser-facing pages (submission and verification)
// and the JSON status lookup.  Page handlers report results through flash
// messages and always answer POSTs with a 303 redirect.

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/civicdesk/complaint-portal/internal/middleware"
	"github.com/civicdesk/complaint-portal/internal/model"
	"github.com/civicdesk/complaint-portal/internal/service"
	"github.com/civicdesk/complaint-portal/internal/utils"
)

// Flash categories understood by the layout.
const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// ComplaintService is the slice of service.ComplaintService the handlers use.
type ComplaintService interface {
	Submit(ctx context.Context, in service.SubmitInput) (service.SubmitResult, error)
	Verify(ctx context.Context, ref, token string) model.Outcome
	Status(ref string) (model.ComplaintStatus, error)
	TTL() time.Duration
}

// ComplaintHandler serves the submission form, both verification entry
// points and the status endpoint.
type ComplaintHandler struct {
	Svc ComplaintService
	// MissingSMTP lists unset SMTP settings.  It is only consulted in debug
	// mode to explain why a mail was not sent.
	MissingSMTP []string
	Debug       bool
	Logger      *zap.Logger
}

// pageData is what every page template receives.
type pageData struct {
	Flashes []utils.Flash
	TTL     string
}

// Index renders the submission form.
func (h *ComplaintHandler) Index(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", pageData{
		Flashes: middleware.Flashes(c),
		TTL:     utils.HumanDuration(h.Svc.TTL()),
	})
}

// Submit stores the complaint and redirects back to the form with a flash
// describing whether the verification mail went out.
func (h *ComplaintHandler) Submit(c echo.Context) error {
	res, err := h.Svc.Submit(c.Request().Context(), service.SubmitInput{
		Name:     c.FormValue("name"),
		Email:    c.FormValue("email"),
		Issue:    c.FormValue("issue"),
		Location: c.FormValue("location"),
	})
	if errors.Is(err, service.ErrMissingFields) {
		return h.redirect(c, "/", FlashDanger, "Please fill in all fields.")
	}
	if err != nil {
		h.Logger.Error("submit failed", zap.Error(err))
		return h.redirect(c, "/", FlashDanger, "Something went wrong. Please try again.")
	}

	switch {
	case res.EmailSent:
		return h.redirect(c, "/", FlashSuccess,
			fmt.Sprintf("Complaint submitted. A confirmation email (ref %s) has been sent to %s.", res.ReferenceID, res.Email))
	case h.Debug && len(h.MissingSMTP) > 0:
		return h.redirect(c, "/", FlashWarning,
			fmt.Sprintf("Complaint submitted (ref %s). Email NOT sent. Missing SMTP config: %s",
				res.ReferenceID, strings.Join(h.MissingSMTP, ", ")))
	default:
		return h.redirect(c, "/", FlashWarning,
			fmt.Sprintf("Complaint submitted (ref %s). We could not send an email - please contact support or keep this reference id.", res.ReferenceID))
	}
}

// VerifyForm renders the manual verification form.
func (h *ComplaintHandler) VerifyForm(c echo.Context) error {
	return c.Render(http.StatusOK, "verify.html", pageData{
		Flashes: middleware.Flashes(c),
		TTL:     utils.HumanDuration(h.Svc.TTL()),
	})
}

// VerifyManual handles the posted verification form.  Failures send the user
// back to the form, success to the home page.
func (h *ComplaintHandler) VerifyManual(c echo.Context) error {
	ref := strings.TrimSpace(c.FormValue("reference_id"))
	token := strings.TrimSpace(c.FormValue("token"))

	switch out := h.Svc.Verify(c.Request().Context(), ref, token); out {
	case model.OutcomeVerified:
		return h.redirect(c, "/", FlashSuccess, fmt.Sprintf("Reference %s successfully verified. Thank you!", ref))
	case model.OutcomeInvalidReference:
		return h.redirect(c, "/verify", FlashDanger, "Invalid reference id.")
	case model.OutcomeExpired:
		return h.redirect(c, "/verify", FlashWarning, "Token expired. Please resubmit your complaint.")
	default:
		return h.redirect(c, "/verify", FlashDanger, "Invalid token for this reference.")
	}
}

// VerifyLink handles the emailed link /verify/:reference_id/:token.  Inputs
// are normalised exactly like the form's, the same workflow runs, and the
// user always lands on the home page.
func (h *ComplaintHandler) VerifyLink(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("reference_id"))
	token := strings.TrimSpace(c.Param("token"))

	switch out := h.Svc.Verify(c.Request().Context(), ref, token); out {
	case model.OutcomeVerified:
		return h.redirect(c, "/", FlashSuccess, fmt.Sprintf("Reference %s successfully verified via email. Thank you!", ref))
	case model.OutcomeInvalidReference:
		return h.redirect(c, "/", FlashDanger, "Invalid reference id.")
	case model.OutcomeExpired:
		return h.redirect(c, "/", FlashWarning, "Token expired. Please resubmit your complaint.")
	default:
		return h.redirect(c, "/", FlashDanger, "Invalid token.")
	}
}

// Status returns the public view of a complaint.  The verification code is
// never part of the response.
func (h *ComplaintHandler) Status(c echo.Context) error {
	st, err := h.Svc.Status(c.Param("reference_id"))
	if errors.Is(err, model.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reference not found"})
	}
	if err != nil {
		h.Logger.Error("status lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, st)
}

func (h *ComplaintHandler) redirect(c echo.Context, to, category, message string) error {
	if err := middleware.AddFlash(c, category, message); err != nil {
		// the redirect still happens, the user just misses the message
		h.Logger.Warn("flash not set", zap.Error(err))
	}
	return c.Redirect(http.StatusSeeOther, to)
}
