package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/orbita-labs/taskscheduler/internal/scheduling/domain"
	"github.com/orbita-labs/taskscheduler/pkg/config"
)

// jobInput is the JSON document scheduler run/explain read from stdin or a
// file: tasks, calendar_slots, leaves, and an optional config override
// layered on top of config.DefaultSchedulerConfig.
type jobInput struct {
	Tasks         []taskJSON         `json:"tasks"`
	CalendarSlots []calendarSlotJSON `json:"calendar_slots"`
	Leaves        []leaveJSON        `json:"leaves"`
	Config        *configJSON        `json:"config"`
}

type taskJSON struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	UserID         int      `json:"user_id"`
	RemainingHours float64  `json:"remaining_hours"`
	PriorityScore  float64  `json:"priority_score"`
	HierarchyLevel int      `json:"hierarchy_level"`
	IsLeafTask     *bool    `json:"is_leaf_task"`
	ParentID       *int     `json:"parent_id"`
}

type calendarSlotJSON struct {
	TaskID    int `json:"task_id"`
	DayOfWeek int `json:"dayofweek"`
	HourFrom  int `json:"hour_from"`
	HourTo    int `json:"hour_to"`
}

type leaveJSON struct {
	TaskID   int    `json:"task_id"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

// configJSON mirrors config.SchedulerConfig's tunable fields except
// HybridMode, which the job document cannot set; any field left unset keeps
// config.DefaultSchedulerConfig's value.
type configJSON struct {
	InitialHorizonDays     *int     `json:"initial_horizon_days"`
	HorizonExtensionFactor *float64 `json:"horizon_extension_factor"`
	MaxHorizonDays         *int     `json:"max_horizon_days"`
	OrtoolsTimeLimitMs     *int64   `json:"ortools_time_limit_ms"`
	NumSearchWorkers       *int     `json:"num_search_workers"`
	GreedyThresholdTasks   *int     `json:"greedy_threshold_tasks"`
	GreedyThresholdHours   *float64 `json:"greedy_threshold_hours"`
	GreedyThresholdUsers   *int     `json:"greedy_threshold_users"`
	GreedyThresholdAvgHours *float64 `json:"greedy_threshold_avg_hours"`
	Seed                   *int64   `json:"seed"`
}

func readJobInput(r io.Reader) (*jobInput, error) {
	var in jobInput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("parse job input: %w", err)
	}
	return &in, nil
}

func (in *jobInput) toDomain() ([]domain.Task, []domain.CalendarSlot, []domain.Leave, error) {
	tasks := make([]domain.Task, 0, len(in.Tasks))
	for _, tj := range in.Tasks {
		task := domain.Task{
			ID:             tj.ID,
			Name:           tj.Name,
			UserID:         tj.UserID,
			RemainingHours: tj.RemainingHours,
			PriorityScore:  tj.PriorityScore,
			HierarchyLevel: tj.HierarchyLevel,
			IsLeafTask:     true,
			ParentID:       tj.ParentID,
		}
		if tj.IsLeafTask != nil {
			task.IsLeafTask = *tj.IsLeafTask
		}
		if err := task.Validate(); err != nil {
			return nil, nil, nil, err
		}
		tasks = append(tasks, task)
	}

	slots := make([]domain.CalendarSlot, 0, len(in.CalendarSlots))
	for _, sj := range in.CalendarSlots {
		slots = append(slots, domain.CalendarSlot{
			TaskID:    sj.TaskID,
			DayOfWeek: sj.DayOfWeek,
			HourFrom:  sj.HourFrom,
			HourTo:    sj.HourTo,
		})
	}

	leaves := make([]domain.Leave, 0, len(in.Leaves))
	for _, lj := range in.Leaves {
		from, err := time.Parse("2006-01-02", lj.DateFrom)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("leave date_from %q: %w", lj.DateFrom, err)
		}
		to, err := time.Parse("2006-01-02", lj.DateTo)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("leave date_to %q: %w", lj.DateTo, err)
		}
		leaves = append(leaves, domain.Leave{TaskID: lj.TaskID, DateFrom: from, DateTo: to})
	}

	return tasks, slots, leaves, nil
}

func (in *jobInput) toConfig() config.SchedulerConfig {
	cfg := config.DefaultSchedulerConfig()
	cj := in.Config
	if cj == nil {
		return cfg
	}
	if cj.InitialHorizonDays != nil {
		cfg.InitialHorizonDays = *cj.InitialHorizonDays
	}
	if cj.HorizonExtensionFactor != nil {
		cfg.HorizonExtensionFactor = *cj.HorizonExtensionFactor
	}
	if cj.MaxHorizonDays != nil {
		cfg.MaxHorizonDays = *cj.MaxHorizonDays
	}
	if cj.OrtoolsTimeLimitMs != nil {
		cfg.OrtoolsTimeLimit = time.Duration(*cj.OrtoolsTimeLimitMs) * time.Millisecond
	}
	if cj.NumSearchWorkers != nil {
		cfg.NumSearchWorkers = *cj.NumSearchWorkers
	}
	if cj.GreedyThresholdTasks != nil {
		cfg.GreedyThresholdTasks = *cj.GreedyThresholdTasks
	}
	if cj.GreedyThresholdHours != nil {
		cfg.GreedyThresholdHours = *cj.GreedyThresholdHours
	}
	if cj.GreedyThresholdUsers != nil {
		cfg.GreedyThresholdUsers = *cj.GreedyThresholdUsers
	}
	if cj.GreedyThresholdAvgHours != nil {
		cfg.GreedyThresholdAvgHours = *cj.GreedyThresholdAvgHours
	}
	if cj.Seed != nil {
		cfg.Seed = *cj.Seed
	}
	return cfg
}
