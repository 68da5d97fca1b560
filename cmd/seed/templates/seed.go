package main

import (
	"context"
	"errors"
	"fmt"

	"promptcron/services/job"

	"go.uber.org/zap"
)

type template struct {
	ID          string
	Name        string
	Prompt      string
	Schedule    string
	Description string
}

var templates = []template{
	{
		ID:          "news-summary",
		Name:        "News Summary",
		Prompt:      "Search for {{topic}} news and summarize top 3 stories for #marketing",
		Schedule:    "0 9 * * 1-5",
		Description: "Weekday morning news digest.",
	},
	{
		ID:          "jira-standup",
		Name:        "Jira Standup",
		Prompt:      "Get all In Progress Jira tickets for team {{team}} and post summary to #eng-standup",
		Schedule:    "15 9 * * 1-5",
		Description: "Daily standup summary at 9:15am.",
	},
	{
		ID:          "metric-alert",
		Name:        "Metric Alert",
		Prompt:      "Check {{metric}} and alert #ops if above {{threshold}}",
		Schedule:    "*/30 * * * *",
		Description: "Check every 30 minutes.",
	},
}

type upserter interface {
	Upsert(ctx context.Context, jobID, schedule string, enabled bool) error
}

// seed inserts every missing template disabled and registers its trigger.
// Existing jobs are left untouched so operators keep their edits.
func seed(ctx context.Context, jobs job.Store, triggers upserter) (int, error) {
	created := 0
	for _, t := range templates {
		log := zap.L().With(zap.String("job_id", t.ID))

		_, err := jobs.Get(ctx, t.ID)
		if err == nil {
			log.Info("template already seeded")
			continue
		}
		if !errors.Is(err, job.ErrJobNotFound) {
			return created, err
		}

		j := &job.Job{
			ID:         t.ID,
			Name:       t.Name,
			Prompt:     t.Prompt,
			Schedule:   t.Schedule,
			Enabled:    false,
			MaxTurns:   job.DefaultMaxTurns,
			MaxRetries: job.DefaultMaxRetries,
			AutoRetry:  true,
			CreatedBy:  "seed",
		}
		if err := jobs.Create(ctx, j); err != nil {
			return created, fmt.Errorf("create %s: %w", t.ID, err)
		}
		if err := triggers.Upsert(ctx, t.ID, t.Schedule, false); err != nil {
			return created, fmt.Errorf("register trigger for %s: %w", t.ID, err)
		}

		log.Info("template seeded", zap.String("schedule", t.Schedule), zap.String("description", t.Description))
		created++
	}
	return created, nil
}
