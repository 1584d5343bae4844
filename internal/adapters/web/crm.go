package web

import (
	"net/http"

	"studioflow/internal/core"
)

// ── Clients ──────────────────────────────────────────────────────────────────

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.CRM.GetClients(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, clients)
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var input core.ClientInput
	if !decodeJSON(w, r, &input) {
		return
	}
	client, err := h.svc.CRM.CreateClient(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, client)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	client, err := h.svc.CRM.GetClient(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, client)
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var input core.ClientInput
	if !decodeJSON(w, r, &input) {
		return
	}
	client, err := h.svc.CRM.UpdateClient(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, client)
}

// ── Leads ────────────────────────────────────────────────────────────────────

func (h *Handler) listLeads(w http.ResponseWriter, r *http.Request) {
	status := core.LeadStatus(r.URL.Query().Get("status"))
	leads, err := h.svc.CRM.GetLeads(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, leads)
}

func (h *Handler) createLead(w http.ResponseWriter, r *http.Request) {
	var input core.LeadInput
	if !decodeJSON(w, r, &input) {
		return
	}
	lead, err := h.svc.CRM.CreateLead(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, lead)
}

func (h *Handler) getLead(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	lead, err := h.svc.CRM.GetLead(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, lead)
}

func (h *Handler) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	lead, err := h.svc.CRM.UpdateLeadStatus(r.Context(), id, core.LeadStatus(body.Status))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, lead)
}

type projectRequest struct {
	ClientID         int    `json:"client_id"`
	Name             string `json:"name"`
	Code             string `json:"code"`
	ProjectType      string `json:"project_type"`
	Location         string `json:"location"`
	StartDate        string `json:"start_date"`
	ExpectedHandover string `json:"expected_handover"`
	ProjectManager   *int   `json:"project_manager"`
	SiteEngineer     *int   `json:"site_engineer"`
}

func (req projectRequest) toInput() (core.ProjectInput, error) {
	start, err := optionalDate(req.StartDate)
	if err != nil {
		return core.ProjectInput{}, err
	}
	handover, err := optionalDate(req.ExpectedHandover)
	if err != nil {
		return core.ProjectInput{}, err
	}
	return core.ProjectInput{
		ClientID:         req.ClientID,
		Name:             req.Name,
		Code:             req.Code,
		ProjectType:      req.ProjectType,
		Location:         req.Location,
		StartDate:        start,
		ExpectedHandover: handover,
		ProjectManager:   req.ProjectManager,
		SiteEngineer:     req.SiteEngineer,
	}, nil
}

func (h *Handler) convertLead(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	project, err := h.svc.CRM.ConvertLead(r.Context(), id, input, actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, project)
}

// ── Projects ─────────────────────────────────────────────────────────────────

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.CRM.GetProjects(r.Context(), queryInt(r, "client_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, projects)
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	project, err := h.svc.CRM.CreateProject(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, project)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	project, err := h.svc.CRM.GetProject(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, project)
}

func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	project, err := h.svc.CRM.UpdateProject(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, project)
}

func (h *Handler) updateProjectStage(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Stage        string `json:"stage"`
		HealthStatus string `json:"health_status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	project, err := h.svc.CRM.UpdateProjectStage(r.Context(), id, body.Stage, body.HealthStatus)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, project)
}

// ── Tasks ────────────────────────────────────────────────────────────────────

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.CRM.GetTasks(r.Context(), queryInt(r, "project_id"), queryInt(r, "assigned_to"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, tasks)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID   int    `json:"project_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		DueDate     string `json:"due_date"`
		AssignedTo  *int   `json:"assigned_to"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	due, err := optionalDate(req.DueDate)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	task, err := h.svc.CRM.CreateTask(r.Context(), core.TaskInput{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     due,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, task)
}

func (h *Handler) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	task, err := h.svc.CRM.UpdateTaskStatus(r.Context(), id, core.TaskStatus(body.Status))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, task)
}

// ── Vendors ──────────────────────────────────────────────────────────────────

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.svc.Vendors.GetVendors(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, vendors)
}

func (h *Handler) createVendor(w http.ResponseWriter, r *http.Request) {
	var input core.VendorInput
	if !decodeJSON(w, r, &input) {
		return
	}
	vendor, err := h.svc.Vendors.CreateVendor(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, vendor)
}

func (h *Handler) getVendor(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	vendor, err := h.svc.Vendors.GetVendor(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, vendor)
}

func (h *Handler) updateVendor(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var input core.VendorInput
	if !decodeJSON(w, r, &input) {
		return
	}
	vendor, err := h.svc.Vendors.UpdateVendor(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, vendor)
}

func (h *Handler) deleteVendor(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.Vendors.DeleteVendor(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

// ── Users ────────────────────────────────────────────────────────────────────

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""
	users, err := h.svc.Users.GetUsers(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var input core.UserInput
	if !decodeJSON(w, r, &input) {
		return
	}
	user, err := h.svc.Users.CreateUser(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var input core.UserInput
	if !decodeJSON(w, r, &input) {
		return
	}
	user, err := h.svc.Users.UpdateUser(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, user)
}

func (h *Handler) setUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.svc.Users.SetUserActive(r.Context(), id, body.Active); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"active": body.Active})
}
