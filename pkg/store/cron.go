package store

import (
	"time"

	"github.com/crewcore/crew/pkg/errkind"
)

// CronJob is one scheduled message injection (spec §6 `cron add`): a cron
// expression that, when due, publishes Message onto (Channel, ChatID).
type CronJob struct {
	Name      string
	Expr      string
	TZ        string
	Message   string
	Channel   string
	ChatID    string
	CreatedAt time.Time
	LastRunAt time.Time
}

// PutCronJob inserts or replaces a named cron job.
func (s *Store) PutCronJob(j CronJob) error {
	if j.TZ == "" {
		j.TZ = "UTC"
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	_, err := s.WorkLog.Exec(`
		INSERT INTO cron_jobs (name, expr, tz, message, channel, chat_id, created_at, last_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '')
		ON CONFLICT(name) DO UPDATE SET expr = excluded.expr, tz = excluded.tz, message = excluded.message,
			channel = excluded.channel, chat_id = excluded.chat_id
	`, j.Name, j.Expr, j.TZ, j.Message, j.Channel, j.ChatID, j.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "put cron job", err)
	}
	return nil
}

// DeleteCronJob removes a cron job by name.
func (s *Store) DeleteCronJob(name string) error {
	_, err := s.WorkLog.Exec(`DELETE FROM cron_jobs WHERE name = ?`, name)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "delete cron job", err)
	}
	return nil
}

// AllCronJobs returns every registered cron job.
func (s *Store) AllCronJobs() ([]CronJob, error) {
	rows, err := s.WorkLog.Query(`SELECT name, expr, tz, message, channel, chat_id, created_at, last_run_at FROM cron_jobs`)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query cron jobs", err)
	}
	defer rows.Close()

	var out []CronJob
	for rows.Next() {
		var j CronJob
		var created, lastRun string
		if err := rows.Scan(&j.Name, &j.Expr, &j.TZ, &j.Message, &j.Channel, &j.ChatID, &created, &lastRun); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan cron job", err)
		}
		j.CreatedAt, _ = time.Parse(time.RFC3339, created)
		if lastRun != "" {
			j.LastRunAt, _ = time.Parse(time.RFC3339, lastRun)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkCronJobRun stamps a job's last_run_at to ts.
func (s *Store) MarkCronJobRun(name string, ts time.Time) error {
	_, err := s.WorkLog.Exec(`UPDATE cron_jobs SET last_run_at = ? WHERE name = ?`, ts.UTC().Format(time.RFC3339), name)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "mark cron job run", err)
	}
	return nil
}
