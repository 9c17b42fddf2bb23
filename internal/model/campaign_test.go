package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recurring(interval RecurrenceInterval, at time.Time) *Campaign {
	return &Campaign{ScheduledType: ScheduleRecurring, ScheduledAt: &at, RecurrenceInterval: interval}
}

func TestNextScheduledTime(t *testing.T) {
	jan31 := time.Date(2024, time.January, 31, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		interval RecurrenceInterval
		from     time.Time
		want     time.Time
	}{
		{"daily", RecurDaily, jan31, time.Date(2024, time.February, 1, 9, 30, 0, 0, time.UTC)},
		{"weekly", RecurWeekly, jan31, time.Date(2024, time.February, 7, 9, 30, 0, 0, time.UTC)},
		{"biweekly", RecurBiweekly, jan31, time.Date(2024, time.February, 14, 9, 30, 0, 0, time.UTC)},
		{"monthly clamps to leap day", RecurMonthly, jan31, time.Date(2024, time.February, 29, 9, 30, 0, 0, time.UTC)},
		{"monthly clamps to Feb 28", RecurMonthly, time.Date(2025, time.January, 31, 9, 30, 0, 0, time.UTC), time.Date(2025, time.February, 28, 9, 30, 0, 0, time.UTC)},
		{"monthly across year end", RecurMonthly, time.Date(2025, time.December, 15, 8, 0, 0, 0, time.UTC), time.Date(2026, time.January, 15, 8, 0, 0, 0, time.UTC)},
		{"unknown interval falls back to weekly", RecurrenceInterval("yearly"), jan31, time.Date(2024, time.February, 7, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recurring(tt.interval, tt.from).NextScheduledTime()
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestNextScheduledTimeNotRecurring(t *testing.T) {
	at := time.Date(2024, time.January, 31, 9, 30, 0, 0, time.UTC)
	c := &Campaign{ScheduledType: ScheduleScheduled, ScheduledAt: &at}
	assert.Nil(t, c.NextScheduledTime())

	c = &Campaign{ScheduledType: ScheduleRecurring, RecurrenceInterval: RecurDaily}
	assert.Nil(t, c.NextScheduledTime(), "no scheduled_at")
}

func TestShouldContinueRecurring(t *testing.T) {
	now := time.Date(2026, time.March, 9, 9, 30, 0, 0, time.UTC)
	end := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	three := 3

	tests := []struct {
		name string
		c    Campaign
		want bool
	}{
		{"open ended", Campaign{ScheduledType: ScheduleRecurring}, true},
		{"not recurring", Campaign{ScheduledType: ScheduleImmediate}, false},
		{"before end date", Campaign{ScheduledType: ScheduleRecurring, RecurrenceEndDate: &end}, true},
		{"end date passed", Campaign{ScheduledType: ScheduleRecurring, RecurrenceEndDate: &past}, false},
		{"end date is now", Campaign{ScheduledType: ScheduleRecurring, RecurrenceEndDate: &now}, false},
		{"below max occurrences", Campaign{ScheduledType: ScheduleRecurring, MaxOccurrences: &three, OccurrenceCount: 2}, true},
		{"max occurrences reached", Campaign{ScheduledType: ScheduleRecurring, MaxOccurrences: &three, OccurrenceCount: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.ShouldContinueRecurring(now))
		})
	}
}
