package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garnizeh/whitelist/pkg/discord"
	"github.com/garnizeh/whitelist/pkg/models"
)

// TypeStaffWebhook announces a submitted or resubmitted application to staff.
const TypeStaffWebhook = "webhook.application_submitted"

type staffWebhookPayload struct {
	ApplicationID string `json:"application_id"`
	ApplicantID   string `json:"applicant_id"`
	ApplicantName string `json:"applicant_name"`
	Resubmitted   bool   `json:"resubmitted"`
	At            int64  `json:"at"`
}

// WebhookPoster delivers an embed to the staff channel.
type WebhookPoster interface {
	PostWebhook(ctx context.Context, embed discord.Embed) error
}

// StaffWebhookHandler posts the queued announcement. Errors are retried by
// the pool with backoff.
func StaffWebhookHandler(poster WebhookPoster) Handler {
	return func(ctx context.Context, j *Job) error {
		var pl staffWebhookPayload
		if err := json.Unmarshal(j.Payload, &pl); err != nil {
			return fmt.Errorf("decode webhook payload: %w", err)
		}
		embed := discord.SubmittedEmbed(pl.ApplicantName, pl.ApplicantID, pl.ApplicationID, pl.Resubmitted, time.UnixMilli(pl.At))
		return poster.PostWebhook(ctx, embed)
	}
}

// Enqueuer persists a job for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (string, error)
}

// Announcer queues staff webhook jobs for new and resubmitted applications.
type Announcer struct {
	queue       Enqueuer
	maxAttempts int
	now         func() time.Time
}

func NewAnnouncer(queue Enqueuer, maxAttempts int) *Announcer {
	return &Announcer{queue: queue, maxAttempts: maxAttempts, now: time.Now}
}

func (a *Announcer) Announce(ctx context.Context, app models.Application, resubmitted bool) error {
	pl := staffWebhookPayload{
		ApplicationID: app.ID,
		ApplicantID:   app.ApplicantID,
		ApplicantName: app.ApplicantName,
		Resubmitted:   resubmitted,
		At:            a.now().UnixMilli(),
	}
	if _, err := a.queue.Enqueue(ctx, TypeStaffWebhook, pl, 10, a.maxAttempts); err != nil {
		return fmt.Errorf("queue staff webhook: %w", err)
	}
	return nil
}
