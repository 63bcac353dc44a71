// Package mcp exposes the billing engine as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ldi/hourbook/internal/billing"
	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"
)

const defaultSession = "default"

type tools struct {
	engine *billing.Engine
	log    *slog.Logger

	defaultRate *decimal.Decimal
	defaultTax  *decimal.Decimal
}

// Option configures the tool server.
type Option func(*tools)

// WithClosureDefaults sets the hourly rate and tax percentage create_closure
// uses when the caller omits them.
func WithClosureDefaults(hourlyRate, taxPercentage decimal.Decimal) Option {
	return func(t *tools) {
		t.defaultRate = &hourlyRate
		t.defaultTax = &taxPercentage
	}
}

func ownerArg() mcp.ToolOption {
	return mcp.WithString("owner_id", mcp.Description("Owner whose data the call is scoped to"), mcp.Required())
}

func sessionArg() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Description("Session ID for staging hours (defaults to 'default')."))
}

// NewServer creates a new MCP server. A nil logger uses slog.Default.
func NewServer(engine *billing.Engine, logger *slog.Logger, opts ...Option) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &tools{engine: engine, log: logger}
	for _, opt := range opts {
		opt(t)
	}
	s := server.NewMCPServer("Hourbook", "0.1.0")

	// Hour ledger
	s.AddTool(mcp.NewTool("record_hour_entry",
		mcp.WithDescription("Log hours worked on a task. Fails if the work date falls in a closed month."),
		ownerArg(),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("work_date", mcp.Description("Work date (YYYY-MM-DD)"), mcp.Required()),
		mcp.WithString("hours_worked", mcp.Description("Hours worked, greater than zero (e.g. \"1.5\")"), mcp.Required()),
		mcp.WithString("description", mcp.Description("What was done")),
	), t.recordHourEntry)

	s.AddTool(mcp.NewTool("edit_hour_entry",
		mcp.WithDescription("Edit an hour record. Both the old and the new work month must be open."),
		ownerArg(),
		mcp.WithString("record_id", mcp.Description("Hour record ID"), mcp.Required()),
		mcp.WithString("task_id", mcp.Description("Move the record to this task")),
		mcp.WithString("work_date", mcp.Description("New work date (YYYY-MM-DD)")),
		mcp.WithString("hours_worked", mcp.Description("New hours worked")),
		mcp.WithString("description", mcp.Description("New description")),
	), t.editHourEntry)

	s.AddTool(mcp.NewTool("remove_hour_entry",
		mcp.WithDescription("Delete an hour record."),
		ownerArg(),
		mcp.WithString("record_id", mcp.Description("Hour record ID"), mcp.Required()),
	), t.removeHourEntry)

	// Staging
	s.AddTool(mcp.NewTool("stage_hour_entry",
		mcp.WithDescription("Stage an hour entry for a session. Staged entries are applied together by 'commit_staged_hours'."),
		ownerArg(),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("work_date", mcp.Description("Work date (YYYY-MM-DD)"), mcp.Required()),
		mcp.WithString("hours_worked", mcp.Description("Hours worked, greater than zero"), mcp.Required()),
		mcp.WithString("description", mcp.Description("What was done")),
		sessionArg(),
	), t.stageHourEntry)

	s.AddTool(mcp.NewTool("list_staged_hours",
		mcp.WithDescription("List the hour entries staged for a session."),
		ownerArg(),
		sessionArg(),
	), t.listStagedHours)

	s.AddTool(mcp.NewTool("commit_staged_hours",
		mcp.WithDescription("Record every staged hour entry of a session in one transaction. Any failure leaves nothing recorded and the entries staged."),
		ownerArg(),
		sessionArg(),
	), t.commitStagedHours)

	// Tasks
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a pending task for a client."),
		ownerArg(),
		mcp.WithString("client_id", mcp.Description("Client ID"), mcp.Required()),
		mcp.WithString("task_type_id", mcp.Description("Task type ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Task name"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("estimated_hours", mcp.Description("Estimated hours")),
		mcp.WithString("creation_date", mcp.Description("Creation date (YYYY-MM-DD, defaults to today). Decides the billing month.")),
		mcp.WithArray("tags", mcp.Description("Tags"), mcp.WithStringItems()),
	), t.createTask)

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task."),
		ownerArg(),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), t.getTask)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filters."),
		ownerArg(),
		mcp.WithString("status", mcp.Description("Filter by status (pending|completed)")),
		mcp.WithString("client_id", mcp.Description("Filter by client")),
		mcp.WithNumber("month", mcp.Description("Filter by creation month (requires year)")),
		mcp.WithNumber("year", mcp.Description("Filter by creation year (requires month)")),
	), t.listTasks)

	s.AddTool(mcp.NewTool("toggle_task_status",
		mcp.WithDescription("Flip a task between pending and completed. Completing requires logged hours."),
		ownerArg(),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), t.toggleTaskStatus)

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a pending task and its hour records."),
		ownerArg(),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), t.deleteTask)

	// Catalog
	s.AddTool(mcp.NewTool("create_client",
		mcp.WithDescription("Create a client."),
		ownerArg(),
		mcp.WithString("name", mcp.Description("Client name (unique per owner)"), mcp.Required()),
		mcp.WithString("email", mcp.Description("Contact email")),
	), t.createClient)

	s.AddTool(mcp.NewTool("create_task_type",
		mcp.WithDescription("Create a task type."),
		ownerArg(),
		mcp.WithString("name", mcp.Description("Task type name (unique per owner)"), mcp.Required()),
	), t.createTaskType)

	s.AddTool(mcp.NewTool("create_expense",
		mcp.WithDescription("Create a catalog expense."),
		ownerArg(),
		mcp.WithString("name", mcp.Description("Expense name (unique per owner)"), mcp.Required()),
		mcp.WithString("default_amount", mcp.Description("Default amount"), mcp.Required()),
	), t.createExpense)

	// Closures
	s.AddTool(mcp.NewTool("create_closure",
		mcp.WithDescription("Open the closure for a month, snapshotting client hours of tasks created in it."),
		ownerArg(),
		mcp.WithNumber("month", mcp.Description("Month (1-12)"), mcp.Required()),
		mcp.WithNumber("year", mcp.Description("Year"), mcp.Required()),
		mcp.WithString("hourly_rate", mcp.Description("Hourly rate, greater than zero (defaults to the configured rate)")),
		mcp.WithString("tax_percentage", mcp.Description("Tax percentage, 0-100 (defaults to the configured percentage)")),
		mcp.WithString("notes", mcp.Description("Notes")),
		mcp.WithArray("expenses",
			mcp.Description("Expense lines to attach: {expense_id, amount?} from the catalog or {name, amount} ad hoc"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"expense_id": map[string]any{"type": "string"},
					"name":       map[string]any{"type": "string"},
					"amount":     map[string]any{"type": "string"},
				},
			}),
		),
	), t.createClosure)

	s.AddTool(mcp.NewTool("update_closure",
		mcp.WithDescription("Change an open closure's rate, tax or notes. Rows are re-priced."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
		mcp.WithString("hourly_rate", mcp.Description("New hourly rate")),
		mcp.WithString("tax_percentage", mcp.Description("New tax percentage")),
		mcp.WithString("notes", mcp.Description("New notes")),
	), t.updateClosure)

	s.AddTool(mcp.NewTool("close_closure",
		mcp.WithDescription("Close a month. Every task created in it must be completed with hours logged."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
	), t.closeClosure)

	s.AddTool(mcp.NewTool("reopen_closure",
		mcp.WithDescription("Reopen a closed month. Rows are left as they are."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
	), t.reopenClosure)

	s.AddTool(mcp.NewTool("delete_closure",
		mcp.WithDescription("Delete a closure with its rows and expense lines."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
	), t.deleteClosure)

	s.AddTool(mcp.NewTool("recompute_client_row",
		mcp.WithDescription("Re-derive one client's row of an open closure from task hours."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
		mcp.WithString("client_id", mcp.Description("Client ID"), mcp.Required()),
	), t.recomputeClientRow)

	s.AddTool(mcp.NewTool("list_closures",
		mcp.WithDescription("List closures, newest first."),
		ownerArg(),
	), t.listClosures)

	s.AddTool(mcp.NewTool("get_closure_summary",
		mcp.WithDescription("Get a closure with its rows, expense lines and totals."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
	), t.getClosureSummary)

	// Closure expenses
	s.AddTool(mcp.NewTool("add_closure_expense",
		mcp.WithDescription("Attach an expense line to an open closure, from the catalog or ad hoc."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
		mcp.WithString("expense_id", mcp.Description("Catalog expense ID")),
		mcp.WithString("name", mcp.Description("Line name (required without expense_id)")),
		mcp.WithString("amount", mcp.Description("Amount (required without expense_id)")),
	), t.addClosureExpense)

	s.AddTool(mcp.NewTool("update_closure_expense",
		mcp.WithDescription("Edit an expense line of an open closure."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
		mcp.WithString("line_id", mcp.Description("Expense line ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("amount", mcp.Description("New amount")),
	), t.updateClosureExpense)

	s.AddTool(mcp.NewTool("remove_closure_expense",
		mcp.WithDescription("Remove an expense line from an open closure."),
		ownerArg(),
		mcp.WithString("closure_id", mcp.Description("Closure ID"), mcp.Required()),
		mcp.WithString("line_id", mcp.Description("Expense line ID"), mcp.Required()),
	), t.removeClosureExpense)

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// fail turns an engine error into a tool error. Domain errors are shown as
// is; anything else is logged and hidden.
func (t *tools) fail(ctx context.Context, tool string, err error) (*mcp.CallToolResult, error) {
	if billing.IsDomainError(err) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.log.ErrorContext(ctx, "tool failed", "tool", tool, "error", err)
	return mcp.NewToolResultError("internal error"), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

// requireOwner reads owner_id. Calls without an owner are rejected rather
// than scoped to the empty owner.
func requireOwner(request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	owner, err := request.RequireString("owner_id")
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	if strings.TrimSpace(owner) == "" {
		return "", mcp.NewToolResultError("owner_id must not be empty")
	}
	return owner, nil
}

// expenseLines reads the optional expenses array of create_closure. Each item
// names a catalog expense_id with an optional amount override, or gives an
// ad hoc name and amount.
func expenseLines(args map[string]any) ([]billing.ClosureExpenseInput, error) {
	raw, ok := args["expenses"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expenses must be an array")
	}

	lines := make([]billing.ClosureExpenseInput, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expenses[%d] must be an object", i)
		}
		var line billing.ClosureExpenseInput
		line.ExpenseID = optString(obj, "expense_id")
		if name := optString(obj, "name"); name != nil {
			line.Name = *name
		}
		amount, err := optDecimal(obj, "amount")
		if err != nil {
			return nil, fmt.Errorf("expenses[%d]: %w", i, err)
		}
		line.Amount = amount
		lines = append(lines, line)
	}
	return lines, nil
}

func optString(args map[string]any, key string) *string {
	if s, ok := args[key].(string); ok {
		return &s
	}
	return nil
}

// optDecimal reads a decimal given either as a string or a JSON number.
func optDecimal(args map[string]any, key string) (*decimal.Decimal, error) {
	var d decimal.Decimal
	var err error
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		d = decimal.NewFromFloat(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &d, nil
}

func requireDecimal(args map[string]any, key string) (decimal.Decimal, error) {
	d, err := optDecimal(args, key)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d == nil {
		return decimal.Decimal{}, fmt.Errorf("%s is required", key)
	}
	return *d, nil
}

func withDefault(args map[string]any, key string, def *decimal.Decimal) (decimal.Decimal, error) {
	d, err := optDecimal(args, key)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d != nil {
		return *d, nil
	}
	if def != nil {
		return *def, nil
	}
	return decimal.Decimal{}, fmt.Errorf("%s is required", key)
}

func optInt(args map[string]any, key string) (*int, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case float64:
		n := int(v)
		return &n, nil
	case int:
		return &v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		return &n, nil
	}
	return nil, fmt.Errorf("invalid %s", key)
}

func hourEntryInput(request mcp.CallToolRequest) (billing.HourEntryInput, error) {
	args := arguments(request)
	in := billing.HourEntryInput{
		TaskID:      mcp.ParseString(request, "task_id", ""),
		Description: optString(args, "description"),
	}
	date, err := models.ParseDate(mcp.ParseString(request, "work_date", ""))
	if err != nil {
		return in, fmt.Errorf("invalid work_date: expected YYYY-MM-DD")
	}
	in.WorkDate = date
	if in.HoursWorked, err = requireDecimal(args, "hours_worked"); err != nil {
		return in, err
	}
	return in, nil
}

func (t *tools) recordHourEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	in, err := hourEntryInput(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r, err := t.engine.RecordHourEntry(ctx, owner, in)
	if err != nil {
		return t.fail(ctx, "record_hour_entry", err)
	}
	return jsonResult(r)
}

func (t *tools) editHourEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	recordID := mcp.ParseString(request, "record_id", "")
	args := arguments(request)

	upd := billing.HourEntryUpdate{
		TaskID:      optString(args, "task_id"),
		Description: optString(args, "description"),
	}
	if s := optString(args, "work_date"); s != nil {
		date, err := models.ParseDate(*s)
		if err != nil {
			return mcp.NewToolResultError("invalid work_date: expected YYYY-MM-DD"), nil
		}
		upd.WorkDate = &date
	}
	hours, err := optDecimal(args, "hours_worked")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	upd.HoursWorked = hours

	r, err := t.engine.EditHourEntry(ctx, owner, recordID, upd)
	if err != nil {
		return t.fail(ctx, "edit_hour_entry", err)
	}
	return jsonResult(r)
}

func (t *tools) removeHourEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	recordID := mcp.ParseString(request, "record_id", "")

	if err := t.engine.RemoveHourEntry(ctx, owner, recordID); err != nil {
		return t.fail(ctx, "remove_hour_entry", err)
	}
	return mcp.NewToolResultText("Hour entry removed successfully"), nil
}

func (t *tools) stageHourEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	sessionID := mcp.ParseString(request, "session_id", defaultSession)
	in, err := hourEntryInput(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n := t.engine.Staging.AddHourEntry(owner, sessionID, in)
	return mcp.NewToolResultText(fmt.Sprintf("Hour entry staged for session '%s' (%d staged). Stage another or call 'commit_staged_hours' to apply.", sessionID, n)), nil
}

func (t *tools) listStagedHours(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	sessionID := mcp.ParseString(request, "session_id", defaultSession)

	return jsonResult(map[string]any{
		"session_id": sessionID,
		"entries":    t.engine.Staging.Peek(owner, sessionID),
	})
}

func (t *tools) commitStagedHours(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	sessionID := mcp.ParseString(request, "session_id", defaultSession)

	records, err := t.engine.CommitStagedHours(ctx, owner, sessionID)
	if err != nil {
		return t.fail(ctx, "commit_staged_hours", err)
	}
	if len(records) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No hours staged for session '%s'.", sessionID)), nil
	}
	return jsonResult(map[string]any{"records": records})
}

func (t *tools) createTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	args := arguments(request)

	in := billing.TaskInput{
		ClientID:    mcp.ParseString(request, "client_id", ""),
		TaskTypeID:  mcp.ParseString(request, "task_type_id", ""),
		Name:        mcp.ParseString(request, "name", ""),
		Description: optString(args, "description"),
	}
	estimate, err := optDecimal(args, "estimated_hours")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in.EstimatedHours = estimate
	if s := optString(args, "creation_date"); s != nil && *s != "" {
		date, err := models.ParseDate(*s)
		if err != nil {
			return mcp.NewToolResultError("invalid creation_date: expected YYYY-MM-DD"), nil
		}
		in.CreationDate = date
	}
	if tags, ok := args["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				in.Tags = append(in.Tags, s)
			}
		}
	}

	task, err := t.engine.CreateTask(ctx, owner, in)
	if err != nil {
		return t.fail(ctx, "create_task", err)
	}
	return jsonResult(task)
}

func (t *tools) getTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := t.engine.GetTask(ctx, owner, taskID)
	if err != nil {
		return t.fail(ctx, "get_task", err)
	}
	return jsonResult(task)
}

func (t *tools) listTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	args := arguments(request)

	var filter db.TaskFilter
	if s := optString(args, "status"); s != nil {
		status := models.TaskStatus(*s)
		if status != models.TaskStatusPending && status != models.TaskStatusCompleted {
			return mcp.NewToolResultError(fmt.Sprintf("invalid status %q", *s)), nil
		}
		filter.Status = &status
	}
	filter.ClientID = optString(args, "client_id")

	month, err := optInt(args, "month")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	year, err := optInt(args, "year")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if (month == nil) != (year == nil) {
		return mcp.NewToolResultError("month and year must be given together"), nil
	}
	if month != nil {
		p := models.Period{Month: *month, Year: *year}
		if !p.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("invalid period %d/%d", *month, *year)), nil
		}
		filter.Period = &p
	}

	tasks, err := t.engine.ListTasks(ctx, owner, filter)
	if err != nil {
		return t.fail(ctx, "list_tasks", err)
	}
	return jsonResult(map[string]any{"tasks": tasks})
}

func (t *tools) toggleTaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := t.engine.ToggleTaskStatus(ctx, owner, taskID)
	if err != nil {
		return t.fail(ctx, "toggle_task_status", err)
	}
	return jsonResult(task)
}

func (t *tools) deleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	taskID := mcp.ParseString(request, "task_id", "")

	if err := t.engine.DeleteTask(ctx, owner, taskID); err != nil {
		return t.fail(ctx, "delete_task", err)
	}
	return mcp.NewToolResultText("Task deleted successfully"), nil
}

func (t *tools) createClient(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	name := mcp.ParseString(request, "name", "")

	c, err := t.engine.CreateClient(ctx, owner, name, optString(arguments(request), "email"))
	if err != nil {
		return t.fail(ctx, "create_client", err)
	}
	return jsonResult(c)
}

func (t *tools) createTaskType(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	name := mcp.ParseString(request, "name", "")

	tt, err := t.engine.CreateTaskType(ctx, owner, name)
	if err != nil {
		return t.fail(ctx, "create_task_type", err)
	}
	return jsonResult(tt)
}

func (t *tools) createExpense(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	name := mcp.ParseString(request, "name", "")
	amount, err := requireDecimal(arguments(request), "default_amount")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ex, err := t.engine.CreateExpense(ctx, owner, name, amount)
	if err != nil {
		return t.fail(ctx, "create_expense", err)
	}
	return jsonResult(ex)
}

func (t *tools) createClosure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	args := arguments(request)

	in := billing.ClosureInput{
		Month: mcp.ParseInt(request, "month", 0),
		Year:  mcp.ParseInt(request, "year", 0),
		Notes: optString(args, "notes"),
	}
	rate, err := withDefault(args, "hourly_rate", t.defaultRate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tax, err := withDefault(args, "tax_percentage", t.defaultTax)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in.HourlyRate, in.TaxPercentage = rate, tax
	if in.Expenses, err = expenseLines(args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	closure, err := t.engine.CreateClosure(ctx, owner, in)
	if err != nil {
		return t.fail(ctx, "create_closure", err)
	}
	return jsonResult(closure)
}

func (t *tools) updateClosure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")
	args := arguments(request)

	upd := billing.ClosureUpdate{Notes: optString(args, "notes")}
	var err error
	if upd.HourlyRate, err = optDecimal(args, "hourly_rate"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if upd.TaxPercentage, err = optDecimal(args, "tax_percentage"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	closure, err := t.engine.UpdateClosure(ctx, owner, closureID, upd)
	if err != nil {
		return t.fail(ctx, "update_closure", err)
	}
	return jsonResult(closure)
}

func (t *tools) closeClosure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")

	closure, err := t.engine.CloseClosure(ctx, owner, closureID)
	if err != nil {
		return t.fail(ctx, "close_closure", err)
	}
	return jsonResult(closure)
}

func (t *tools) reopenClosure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")

	closure, err := t.engine.ReopenClosure(ctx, owner, closureID)
	if err != nil {
		return t.fail(ctx, "reopen_closure", err)
	}
	return jsonResult(closure)
}

func (t *tools) deleteClosure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")

	if err := t.engine.DeleteClosure(ctx, owner, closureID); err != nil {
		return t.fail(ctx, "delete_closure", err)
	}
	return mcp.NewToolResultText("Closure deleted successfully"), nil
}

func (t *tools) recomputeClientRow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")
	clientID := mcp.ParseString(request, "client_id", "")

	row, err := t.engine.RecomputeClientRow(ctx, owner, closureID, clientID)
	if err != nil {
		return t.fail(ctx, "recompute_client_row", err)
	}
	if row == nil {
		return mcp.NewToolResultText("Client has no hours in this closure; no row kept"), nil
	}
	return jsonResult(row)
}

func (t *tools) listClosures(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}

	closures, err := t.engine.ListClosures(ctx, owner)
	if err != nil {
		return t.fail(ctx, "list_closures", err)
	}
	return jsonResult(map[string]any{"closures": closures})
}

func (t *tools) getClosureSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")

	summary, err := t.engine.GetClosureSummary(ctx, owner, closureID)
	if err != nil {
		return t.fail(ctx, "get_closure_summary", err)
	}
	return jsonResult(summary)
}

func (t *tools) addClosureExpense(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")
	args := arguments(request)

	in := billing.ClosureExpenseInput{
		ExpenseID: optString(args, "expense_id"),
		Name:      mcp.ParseString(request, "name", ""),
	}
	amount, err := optDecimal(args, "amount")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in.Amount = amount

	line, err := t.engine.AddClosureExpense(ctx, owner, closureID, in)
	if err != nil {
		return t.fail(ctx, "add_closure_expense", err)
	}
	return jsonResult(line)
}

func (t *tools) updateClosureExpense(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")
	lineID := mcp.ParseString(request, "line_id", "")
	args := arguments(request)

	upd := billing.ClosureExpenseUpdate{Name: optString(args, "name")}
	amount, err := optDecimal(args, "amount")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	upd.Amount = amount

	line, err := t.engine.UpdateClosureExpense(ctx, owner, closureID, lineID, upd)
	if err != nil {
		return t.fail(ctx, "update_closure_expense", err)
	}
	return jsonResult(line)
}

func (t *tools) removeClosureExpense(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, bad := requireOwner(request)
	if bad != nil {
		return bad, nil
	}
	closureID := mcp.ParseString(request, "closure_id", "")
	lineID := mcp.ParseString(request, "line_id", "")

	if err := t.engine.RemoveClosureExpense(ctx, owner, closureID, lineID); err != nil {
		return t.fail(ctx, "remove_closure_expense", err)
	}
	return mcp.NewToolResultText("Expense line removed successfully"), nil
}
