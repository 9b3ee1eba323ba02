// Package stats serves read-only activity aggregates from Postgres. It never reads the volatile
// buffer, so results lag producers by up to one sync interval.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/activity/domain"
	leveldomain "community-bot/backend/internal/leveling/domain"
	partdomain "community-bot/backend/internal/partition/domain"
)

const (
	DefaultDays  = 30
	MaxDays      = 365
	DefaultLimit = 10
	MaxLimit     = 100
)

var (
	ErrInvalidDays  = errors.New("days must be between 1 and 365")
	ErrInvalidLimit = errors.New("limit must be between 1 and 100")
	ErrInvalidPage  = errors.New("offset must not be negative")
)

// ActivitySource reads the two daily aggregate tables.
type ActivitySource interface {
	DailyStats(ctx context.Context, guildID snowflake.ID, from, to string) ([]domain.DailyStatRow, error)
	DailyMessages(ctx context.Context, guildID snowflake.ID, from, to string) ([]domain.DailyMessageRow, error)
}

// LeaderboardSource ranks members.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context, guildID snowflake.ID, limit, offset int) ([]leveldomain.LeaderboardEntry, error)
}

// PartitionLister lists registered raw-log partitions.
type PartitionLister interface {
	ListPartitions(ctx context.Context) ([]partdomain.Descriptor, error)
}

type Service struct {
	activity    ActivitySource
	leaderboard LeaderboardSource
	partitions  PartitionLister
	now         func() time.Time
}

func NewService(activity ActivitySource, leaderboard LeaderboardSource, partitions PartitionLister) *Service {
	return &Service{activity: activity, leaderboard: leaderboard, partitions: partitions, now: time.Now}
}

// ActivitySeries returns one point per day for the last days days, today included.
func (s *Service) ActivitySeries(ctx context.Context, guildID snowflake.ID, days int) ([]domain.SeriesPoint, error) {
	if days < 1 || days > MaxDays {
		return nil, ErrInvalidDays
	}
	to := s.now().UTC()
	from := to.AddDate(0, 0, -(days - 1))
	fromKey, toKey := domain.DayOf(from), domain.DayOf(to)

	statRows, err := s.activity.DailyStats(ctx, guildID, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("stats: daily stats: %w", err)
	}
	msgRows, err := s.activity.DailyMessages(ctx, guildID, fromKey, toKey)
	if err != nil {
		return nil, fmt.Errorf("stats: daily messages: %w", err)
	}
	return MergeSeries(statRows, msgRows, from, to), nil
}

// MergeSeries joins both sources by date over [from, to]. Every day in the window appears once;
// a day present in only one source gets zeros for the other's fields.
func MergeSeries(statRows []domain.DailyStatRow, msgRows []domain.DailyMessageRow, from, to time.Time) []domain.SeriesPoint {
	start, err := time.Parse(domain.DateLayout, domain.DayOf(from))
	if err != nil {
		return nil
	}
	end, err := time.Parse(domain.DateLayout, domain.DayOf(to))
	if err != nil || end.Before(start) {
		return nil
	}

	index := make(map[string]int)
	var series []domain.SeriesPoint
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(domain.DateLayout)
		index[key] = len(series)
		series = append(series, domain.SeriesPoint{Date: key})
	}
	for _, r := range statRows {
		i, ok := index[r.Date]
		if !ok {
			continue
		}
		series[i].Joins += r.JoinsCount
		series[i].Leaves += r.LeavesCount
		series[i].ModActions += r.ModActionsCount
		series[i].CaptchaKicks += r.CaptchaKicksCount
	}
	for _, r := range msgRows {
		if i, ok := index[r.Date]; ok {
			series[i].Messages += r.Messages
		}
	}
	return series
}

// Leaderboard returns a page of members ranked by total experience.
func (s *Service) Leaderboard(ctx context.Context, guildID snowflake.ID, limit, offset int) ([]leveldomain.LeaderboardEntry, error) {
	if limit < 1 || limit > MaxLimit {
		return nil, ErrInvalidLimit
	}
	if offset < 0 {
		return nil, ErrInvalidPage
	}
	entries, err := s.leaderboard.Leaderboard(ctx, guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("stats: leaderboard: %w", err)
	}
	return entries, nil
}

// Partitions returns the registered raw-log partitions.
func (s *Service) Partitions(ctx context.Context) ([]partdomain.Descriptor, error) {
	return s.partitions.ListPartitions(ctx)
}
