package main

import (
	"context"
	"fmt"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	flag "github.com/spf13/pflag"
)

func (a *app) runListTasks(ctx context.Context, args []string) error {
	taskFlags := flag.NewFlagSet("list-tasks", flag.ContinueOnError)
	taskFlags.SetOutput(a.errOut)
	statusFilter := taskFlags.String("status", "", "Filter by status (pending, completed)")
	clientFilter := taskFlags.String("client", "", "Filter by client ID")
	month := taskFlags.Int("month", 0, "Filter by creation month (with --year)")
	year := taskFlags.Int("year", 0, "Filter by creation year (with --month)")
	if err := taskFlags.Parse(args); err != nil {
		return err
	}

	var filter db.TaskFilter
	if *statusFilter != "" {
		s := models.TaskStatus(*statusFilter)
		if s != models.TaskStatusPending && s != models.TaskStatusCompleted {
			return fmt.Errorf("invalid status %q", *statusFilter)
		}
		filter.Status = &s
	}
	if *clientFilter != "" {
		filter.ClientID = clientFilter
	}
	if *month != 0 || *year != 0 {
		p := models.Period{Month: *month, Year: *year}
		if !p.Valid() {
			return fmt.Errorf("--month and --year must together name a valid period")
		}
		filter.Period = &p
	}

	database, engine, err := a.open(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	tasks, err := engine.ListTasks(ctx, a.cfg.Owner, filter)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%-5s %-30s %-15s %-10s %8s %-10s\n", "#", "NAME", "CLIENT", "CREATED", "HOURS", "STATUS")
	fmt.Fprintln(a.out, "---------------------------------------------------------------------------------")
	for _, t := range tasks {
		fmt.Fprintf(a.out, "%-5d %-30s %-15s %-10s %8s %-10s\n",
			t.TaskNumber, t.Name, t.ClientName, t.CreationDate.Format(models.DateLayout), t.HoursSpent.String(), t.Status)
	}
	return nil
}

func (a *app) runListClosures(ctx context.Context, args []string) error {
	database, engine, err := a.open(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	closures, err := engine.ListClosures(ctx, a.cfg.Owner)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%-8s %-7s %10s %6s %-20s %s\n", "PERIOD", "STATUS", "RATE", "TAX%", "CLOSED AT", "ID")
	fmt.Fprintln(a.out, "--------------------------------------------------------------------------------------------")
	for _, c := range closures {
		closedAt := "-"
		if c.ClosedAt != nil {
			closedAt = c.ClosedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(a.out, "%-8s %-7s %10s %6s %-20s %s\n",
			c.Period(), c.Status, c.HourlyRate.StringFixed(2), c.TaxPercentage.String(), closedAt, c.ID)
	}
	return nil
}

func (a *app) runExport(ctx context.Context, args []string) error {
	path := a.path(a.cfg.SnapshotPath)
	if len(args) > 0 {
		path = args[0]
	}

	database, _, err := a.open(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.ExportSnapshot(ctx, path); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Exported snapshot to %s\n", path)
	return nil
}

func (a *app) runImport(ctx context.Context, args []string) error {
	path := a.path(a.cfg.SnapshotPath)
	if len(args) > 0 {
		path = args[0]
	}

	database, engine, err := a.open(ctx, true)
	if err != nil {
		return err
	}
	defer database.Close()

	n, err := engine.ImportSnapshot(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Imported %d tasks from %s\n", n, path)
	return nil
}
