package core_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"studioflow/internal/core"
)

func TestCRMService_ConvertLead(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewCRMService(pool)
	actor := 1

	lead, err := svc.CreateLead(ctx, core.LeadInput{
		ClientID:       1,
		Title:          "Hillside weekend home",
		LeadSource:     "referral",
		EstimatedValue: decimal.NewFromInt(3500000),
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if lead.Status != core.LeadNew {
		t.Errorf("new lead status = %s, want %s", lead.Status, core.LeadNew)
	}

	project, err := svc.ConvertLead(ctx, lead.ID, core.ProjectInput{
		Name:     "Hillside Weekend Home",
		Code:     "HWH01",
		Location: "Wayanad",
	}, &actor)
	if err != nil {
		t.Fatalf("ConvertLead: %v", err)
	}
	if project.ClientID != 1 {
		t.Errorf("project client = %d, want the lead's client", project.ClientID)
	}
	if project.LeadID == nil || *project.LeadID != lead.ID {
		t.Errorf("project lead_id = %v, want %d", project.LeadID, lead.ID)
	}

	lead, err = svc.GetLead(ctx, lead.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if lead.Status != core.LeadWon {
		t.Errorf("converted lead status = %s, want %s", lead.Status, core.LeadWon)
	}
	if lead.ConvertedBy == nil || *lead.ConvertedBy != actor {
		t.Errorf("converted_by = %v, want %d", lead.ConvertedBy, actor)
	}

	// A won lead cannot be converted twice.
	if _, err := svc.ConvertLead(ctx, lead.ID, core.ProjectInput{Name: "Again", Code: "HWH02"}, &actor); err == nil {
		t.Fatal("expected second conversion to be refused")
	}

	// The project must belong to the lead's client.
	other, err := svc.CreateLead(ctx, core.LeadInput{ClientID: 1, Title: "Office interior"})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if _, err := svc.ConvertLead(ctx, other.ID, core.ProjectInput{ClientID: 99, Name: "Office", Code: "OFI01"}, &actor); err == nil {
		t.Fatal("expected client mismatch to be refused")
	}
}

func TestCRMService_TaskFlow(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewCRMService(pool)
	assignee := 1

	task, err := svc.CreateTask(ctx, core.TaskInput{
		ProjectID:  1,
		Title:      "Submit municipal drawings",
		Priority:   "high",
		AssignedTo: &assignee,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != core.TaskTodo {
		t.Errorf("new task status = %s, want %s", task.Status, core.TaskTodo)
	}

	task, err = svc.UpdateTaskStatus(ctx, task.ID, core.TaskInProgress)
	if err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if task.Status != core.TaskInProgress {
		t.Errorf("task status = %s, want %s", task.Status, core.TaskInProgress)
	}

	mine, err := svc.GetTasks(ctx, nil, &assignee)
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != task.ID {
		t.Fatalf("GetTasks by assignee returned %d tasks", len(mine))
	}
}
