package assignments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parc-backend/internal/asset_mgmt/tokens"
	"parc-backend/internal/platform/auth"
)

type Handler struct {
	svc       *Service
	reclaimer *Reclaimer
	log       logrus.FieldLogger
	// debug adds the underlying error text to 500 responses.
	debug bool
}

func NewHandler(svc *Service, reclaimer *Reclaimer, log logrus.FieldLogger, debug bool) *Handler {
	return &Handler{svc: svc, reclaimer: reclaimer, log: log, debug: debug}
}

// RegisterPublicRoutes mounts the token-scoped acceptance endpoints. They carry no session:
// the token is the credential.
func RegisterPublicRoutes(r gin.IRoutes, h *Handler) {
	r.GET("/assignments/actifs/:token/validate", h.validate(tokens.KindEquipment))
	r.POST("/assignments/actifs/:token/accept", h.accept(tokens.KindEquipment))
	r.POST("/assignments/actifs/:token/reject", h.reject(tokens.KindEquipment))

	r.GET("/assignments/licenses/:token/validate", h.validate(tokens.KindLicense))
	r.POST("/assignments/licenses/:token/accept", h.accept(tokens.KindLicense))
	r.POST("/assignments/licenses/:token/reject", h.reject(tokens.KindLicense))
}

// RegisterRoutes mounts the session endpoints. r must sit behind auth.RequireAuth.
func RegisterRoutes(r gin.IRoutes, h *Handler) {
	r.POST("/assignments/actifs/reserve", h.ReserveActifs)
	r.POST("/assignments/licenses/reserve", h.ReserveLicenses)
	r.POST("/assignments/actifs/resend", h.ResendActif)
	r.POST("/assignments/licenses/resend", h.ResendLicense)
	r.GET("/assignments/tokens", h.ListTokens)
	r.POST("/assignments/sweep", auth.RequireRole("admin"), h.Sweep)
}

// ---------- public ----------

// validate godoc
// @Summary     Validate an assignment link
// @Tags        acceptation
// @Produce     json
// @Param       token path string true "assignment token"
// @Success     200 {object} ValidateActifsResponse
// @Failure     400 {object} invalidDTO
// @Router      /assignments/actifs/{token}/validate [get]
func (h *Handler) validate(kind tokens.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := h.svc.Validate(c.Request.Context(), kind, c.Param("token"))
		if err != nil {
			h.invalid(c, err)
			return
		}
		if kind == tokens.KindLicense {
			c.JSON(http.StatusOK, ValidateLicensesResponse{
				Valid: true, Employee: employeeDTO(v.Employee), Licenses: toLicenses(v), ExpiresAt: v.ExpiresAt,
			})
			return
		}
		c.JSON(http.StatusOK, ValidateActifsResponse{
			Valid: true, Employee: employeeDTO(v.Employee), Actifs: toActifs(v), ExpiresAt: v.ExpiresAt,
		})
	}
}

// accept godoc
// @Summary     Accept an assignment
// @Tags        acceptation
// @Accept      json
// @Produce     json
// @Param       token path string true "assignment token"
// @Param       body body AcceptRequest true "terms acceptance"
// @Success     200 {object} map[string]any
// @Failure     400 {object} failureDTO
// @Router      /assignments/actifs/{token}/accept [post]
func (h *Handler) accept(kind tokens.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AcceptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, ErrInvalid(msgTermsMissing))
			return
		}
		out, err := h.svc.Accept(c.Request.Context(), kind, c.Param("token"), req.AcceptTerms)
		if err != nil {
			h.fail(c, err)
			return
		}
		msg := "Attribution acceptée"
		if !out.EmailSent {
			msg = "Attribution acceptée, mais l'e-mail de confirmation n'a pas pu être envoyé"
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      msg,
			"employeeId":   out.EmployeeID,
			itemsKey(kind): out.ItemIDs,
			"emailSent":    out.EmailSent,
		})
	}
}

// reject godoc
// @Summary     Reject an assignment
// @Tags        acceptation
// @Accept      json
// @Produce     json
// @Param       token path string true "assignment token"
// @Param       body body RejectRequest false "optional reason"
// @Success     200 {object} map[string]any
// @Failure     400 {object} failureDTO
// @Router      /assignments/actifs/{token}/reject [post]
func (h *Handler) reject(kind tokens.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RejectRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				h.fail(c, ErrInvalid("requête invalide"))
				return
			}
		}
		out, err := h.svc.Reject(c.Request.Context(), kind, c.Param("token"), req.Reason)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      "Attribution refusée",
			"employeeId":   out.EmployeeID,
			itemsKey(kind): out.ItemIDs,
		})
	}
}

// ---------- session ----------

func (h *Handler) ReserveActifs(c *gin.Context) {
	var req ReserveActifsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, ErrInvalid("requête invalide"))
		return
	}
	h.reserve(c, tokens.KindEquipment, ReserveInput{EmployeeID: req.EmployeeID, ItemIDs: req.ActifIDs, Quantities: req.Quantities})
}

func (h *Handler) ReserveLicenses(c *gin.Context) {
	var req ReserveLicensesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, ErrInvalid("requête invalide"))
		return
	}
	h.reserve(c, tokens.KindLicense, ReserveInput{EmployeeID: req.EmployeeID, ItemIDs: req.LicenseIDs, Quantities: req.Quantities})
}

func (h *Handler) reserve(c *gin.Context, kind tokens.Kind, in ReserveInput) {
	out, err := h.svc.Reserve(c.Request.Context(), c.GetString(auth.CtxTenantKey), kind, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "Réservation enregistrée, e-mail envoyé"
	if !out.EmailSent {
		msg = "Réservation enregistrée, mais l'e-mail n'a pas pu être envoyé"
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"message":      msg,
		"tokenId":      out.TokenID,
		"employeeId":   out.EmployeeID,
		itemsKey(kind): out.ItemIDs,
		"expiresAt":    out.ExpiresAt,
		"emailSent":    out.EmailSent,
	})
}

func (h *Handler) ResendActif(c *gin.Context) {
	var req ResendActifRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resendFail(c, ErrInvalid("requête invalide"))
		return
	}
	h.resend(c, tokens.KindEquipment, ResendInput{EmployeeID: req.EmployeeID, ItemID: req.ActifID, Database: req.Database})
}

func (h *Handler) ResendLicense(c *gin.Context) {
	var req ResendLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resendFail(c, ErrInvalid("requête invalide"))
		return
	}
	h.resend(c, tokens.KindLicense, ResendInput{EmployeeID: req.EmployeeID, ItemID: req.LicenseID, Database: req.Database})
}

func (h *Handler) resend(c *gin.Context, kind tokens.Kind, in ResendInput) {
	out, err := h.svc.Resend(c.Request.Context(), c.GetString(auth.CtxTenantKey), kind, in)
	if err != nil {
		h.resendFail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "E-mail renvoyé",
		"tokenId":   out.TokenID,
		"emailSent": true,
	})
}

func (h *Handler) resendFail(c *gin.Context, err error) {
	body := h.failure(c, err)
	c.JSON(ToHTTPStatus(err), gin.H{
		"success":   false,
		"message":   body.Message,
		"code":      body.Code,
		"emailSent": false,
	})
}

func (h *Handler) ListTokens(c *gin.Context) {
	f := tokens.Filter{}
	if v := c.Query("employeeId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.fail(c, ErrInvalid("employeeId invalide"))
			return
		}
		f.EmployeeID = &id
	}
	if v := c.Query("status"); v != "" {
		st := tokens.Status(v)
		f.Status = &st
	}
	if v := c.Query("type"); v != "" {
		k := tokens.Kind(v)
		f.Kind = &k
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}

	rows, err := h.svc.ListTokens(c.Request.Context(), c.GetString(auth.CtxTenantKey), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]TokenDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, toTokenDTO(r))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Sweep(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": h.reclaimer.SweepAll(c.Request.Context())})
}

// ---------- errors ----------

func (h *Handler) failure(c *gin.Context, err error) failureDTO {
	out := failureDTO{Success: false, Code: CodeInternal, Message: "Erreur interne du serveur"}
	var api *APIError
	if errors.As(err, &api) {
		out.Code, out.Message, out.Items = api.Code, api.Message, api.Items
	}
	if ToHTTPStatus(err) >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("assignment request failed")
		if h.debug {
			out.Error = err.Error()
		}
	}
	return out
}

func (h *Handler) fail(c *gin.Context, err error) {
	c.JSON(ToHTTPStatus(err), h.failure(c, err))
}

func (h *Handler) invalid(c *gin.Context, err error) {
	f := h.failure(c, err)
	c.JSON(ToHTTPStatus(err), invalidDTO{Valid: false, Message: f.Message, Code: f.Code, Items: f.Items, Error: f.Error})
}
