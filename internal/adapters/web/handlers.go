package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"studioflow/internal/app"
	"studioflow/internal/core"
)

// Handler bundles the HTTP routes over the application services.
type Handler struct {
	svc    *app.Services
	router chi.Router
}

// NewHandler builds the router. Every route group is gated on the capability
// its module requires; identity comes from the X-Username header.
func NewHandler(svc *app.Services, allowedOrigins string) *Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))
	r.Use(h.Identity)

	r.Get("/health", h.health)
	r.Get("/me", h.me)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.requireCapability(core.CapCRM))
			r.Route("/clients", func(r chi.Router) {
				r.Get("/", h.listClients)
				r.Post("/", h.createClient)
				r.Get("/{id}", h.getClient)
				r.Put("/{id}", h.updateClient)
			})
			r.Route("/leads", func(r chi.Router) {
				r.Get("/", h.listLeads)
				r.Post("/", h.createLead)
				r.Get("/{id}", h.getLead)
				r.Patch("/{id}/status", h.updateLeadStatus)
				r.Post("/{id}/convert", h.convertLead)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireCapability(core.CapProjects))
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", h.listProjects)
				r.Post("/", h.createProject)
				r.Get("/{id}", h.getProject)
				r.Put("/{id}", h.updateProject)
				r.Patch("/{id}/stage", h.updateProjectStage)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireCapability(core.CapTasks))
			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", h.listTasks)
				r.Post("/", h.createTask)
				r.Patch("/{id}/status", h.updateTaskStatus)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireCapability(core.CapFinance))
			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.listInvoices)
				r.Post("/", h.createInvoice)
				r.Get("/{id}", h.getInvoice)
				r.Put("/{id}", h.updateInvoice)
				r.Delete("/{id}", h.deleteInvoice)
				r.Post("/{id}/payments", h.recordPayment)
				r.Post("/{id}/refresh-status", h.refreshInvoiceStatus)
			})
			r.Route("/bills", func(r chi.Router) {
				r.Get("/", h.listBills)
				r.Post("/", h.createBill)
				r.Get("/{id}", h.getBill)
				r.Put("/{id}", h.updateBill)
				r.Delete("/{id}", h.deleteBill)
				r.Post("/{id}/payments", h.recordBillPayment)
			})
			r.Route("/advances", func(r chi.Router) {
				r.Get("/", h.listAdvances)
				r.Post("/", h.recordAdvance)
				r.Delete("/{id}", h.deleteAdvance)
				r.Post("/{id}/allocations", h.allocateAdvance)
			})
			r.Route("/claims", func(r chi.Router) {
				r.Get("/", h.listClaims)
				r.Post("/", h.submitClaim)
				r.Get("/{id}", h.getClaim)
				r.Post("/{id}/approve", h.approveClaim)
				r.Post("/{id}/reject", h.rejectClaim)
				r.Post("/{id}/pay", h.payClaim)
			})
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.listAccounts)
				r.Post("/", h.createAccount)
				r.Put("/{id}", h.updateAccount)
				r.Patch("/{id}/active", h.setAccountActive)
			})
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.listTransactions)
				r.Post("/transfer", h.recordTransfer)
				r.Post("/salary", h.recordSalaryPayment)
			})
			r.Route("/recurring", func(r chi.Router) {
				r.Get("/", h.listRecurringRules)
				r.Post("/", h.createRecurringRule)
				r.Put("/{id}", h.updateRecurringRule)
				r.Patch("/{id}/active", h.setRecurringRuleActive)
				r.Post("/run", h.runRecurringRules)
			})
			r.Route("/statements", func(r chi.Router) {
				r.Post("/", h.importStatement)
				r.Get("/{id}", h.getStatementImport)
				r.Post("/{id}/match", h.matchStatementLines)
				r.Post("/lines/{id}/book", h.bookStatementLine)
			})
			r.Get("/receipts", h.listReceipts)
			r.Get("/receipts/{id}", h.getReceipt)
			r.Route("/vendors", func(r chi.Router) {
				r.Get("/", h.listVendors)
				r.Post("/", h.createVendor)
				r.Get("/{id}", h.getVendor)
				r.Put("/{id}", h.updateVendor)
				r.Delete("/{id}", h.deleteVendor)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireCapability(core.CapReports))
			r.Route("/reports", func(r chi.Router) {
				r.Get("/dashboard", h.dashboardSummary)
				r.Get("/aging", h.receivablesAging)
				r.Get("/projects/{id}", h.projectFinancials)
				r.Get("/transactions.csv", h.exportTransactionsCSV)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireCapability(core.CapPayroll))
			r.Get("/payroll", h.payrollMonth)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireCapability(core.CapUsers))
			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.listUsers)
				r.Post("/", h.createUser)
				r.Put("/{id}", h.updateUser)
				r.Patch("/{id}/active", h.setUserActive)
			})
		})
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// me returns the acting user and their capabilities.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, r, "authentication required", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"user":         user,
		"capabilities": h.svc.CapabilitiesFor(user.Role),
	})
}

// ── Request helpers ───────────────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

func urlID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

// optionalDate parses s when present, returning nil for empty strings.
func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// dateOrToday parses s, defaulting to the current date when empty.
func dateOrToday(s string) (time.Time, error) {
	if s == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return parseDate(s)
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, key string) *int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return nil
}

// actorID returns the acting user's id for audit columns. Routes behind
// requireCapability always have a user, so nil only shows up in tests.
func actorID(r *http.Request) *int {
	if u := userFromContext(r.Context()); u != nil {
		return &u.ID
	}
	return nil
}
