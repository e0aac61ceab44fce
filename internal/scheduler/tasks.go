package scheduler

import (
	"encoding/json"
	"time"

	"fieldops_backend/internal/tracking"

	"github.com/hibiken/asynq"
)

const (
	TaskCalendarSync        = "calendar.create_event"
	TaskConversionPing      = "tracking.conversion"
	TaskAppointmentReminder = "appointments.reminder"
)

type CalendarSyncPayload struct {
	AppointmentID string `json:"appointmentId"`
}

type ConversionPingPayload struct {
	Conversion tracking.Conversion `json:"conversion"`
}

// AppointmentReminderPayload carries the run time the reminder was queued
// for so a moved appointment can tell its stale reminders apart.
type AppointmentReminderPayload struct {
	AppointmentID string    `json:"appointmentId"`
	ScheduledFor  time.Time `json:"scheduledFor"`
}

func NewCalendarSyncTask(payload CalendarSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCalendarSync, data), nil
}

func ParseCalendarSyncPayload(task *asynq.Task) (CalendarSyncPayload, error) {
	var payload CalendarSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CalendarSyncPayload{}, err
	}
	return payload, nil
}

func NewConversionPingTask(payload ConversionPingPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversionPing, data), nil
}

func ParseConversionPingPayload(task *asynq.Task) (ConversionPingPayload, error) {
	var payload ConversionPingPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConversionPingPayload{}, err
	}
	return payload, nil
}

func NewAppointmentReminderTask(payload AppointmentReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAppointmentReminder, data), nil
}

func ParseAppointmentReminderPayload(task *asynq.Task) (AppointmentReminderPayload, error) {
	var payload AppointmentReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AppointmentReminderPayload{}, err
	}
	return payload, nil
}
