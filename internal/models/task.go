package models

import (
	"strings"
	"time"
)

// TaskStatus represents the overall state of a pipeline task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// StageStatus represents the state of a single pipeline stage
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusError     StageStatus = "error"
)

// FlowStatus represents the state of a data handoff between two stages
type FlowStatus string

const (
	FlowStatusPending      FlowStatus = "pending"
	FlowStatusTransferring FlowStatus = "transferring"
	FlowStatusCompleted    FlowStatus = "completed"
	FlowStatusError        FlowStatus = "error"
)

// Timeline event kinds
const (
	EventTaskCreated      = "TASK_CREATED"
	EventProcessingUpdate = "PROCESSING_UPDATE"
	EventAgentLog         = "AGENT_LOG"
	EventDataFlowUpdate   = "DATA_FLOW_UPDATE"
	EventTaskCompleted    = "TASK_COMPLETED"
	EventTaskFailed       = "TASK_FAILED"
)

// AgentEventKind builds the timeline kind for a stage status change,
// e.g. AGENT_RUNNING, AGENT_COMPLETED, AGENT_ERROR.
func AgentEventKind(status StageStatus) string {
	return "AGENT_" + strings.ToUpper(string(status))
}

// StageLog is one log line attached to a stage
type StageLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Stage is one ordered step of the pipeline with its own status and progress
type Stage struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Status    StageStatus       `json:"status"`
	Progress  int               `json:"progress"`
	StartTime *time.Time        `json:"start_time,omitempty"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
	Logs      []StageLog        `json:"logs"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// DataFlow is the handoff edge between two adjacent stages
type DataFlow struct {
	ID          string     `json:"id"`
	FromStageID string     `json:"from_stage_id"`
	ToStageID   string     `json:"to_stage_id"`
	DataKind    string     `json:"data_kind"`
	Status      FlowStatus `json:"status"`
}

// TimelineEvent is one entry in a task's append-only audit log
type TimelineEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventKind string    `json:"event_kind"`
	Message   string    `json:"message"`
	StageID   string    `json:"stage_id,omitempty"`
}

// TaskResult holds the output of a successfully completed task
type TaskResult struct {
	SummaryText string `json:"summary_text"`
	OutputURL   string `json:"output_url"`
}

// Task is one end-to-end pipeline run
type Task struct {
	ID               string          `json:"id"`
	Status           TaskStatus      `json:"status"`
	OverallProgress  int             `json:"overall_progress"`
	CurrentStageID   string          `json:"current_stage_id,omitempty"`
	StartTime        time.Time       `json:"start_time"`
	EstimatedEndTime *time.Time      `json:"estimated_end_time,omitempty"`
	Stages           []Stage         `json:"stages"`
	DataFlows        []DataFlow      `json:"data_flows"`
	Timeline         []TimelineEvent `json:"timeline"`
	Result           *TaskResult     `json:"result,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// StageByID returns a pointer into the task's fixed stage list, or nil.
func (t *Task) StageByID(stageID string) *Stage {
	for i := range t.Stages {
		if t.Stages[i].ID == stageID {
			return &t.Stages[i]
		}
	}
	return nil
}

// FlowByEndpoints returns the data flow matching both endpoints, or nil.
func (t *Task) FlowByEndpoints(fromStageID, toStageID string) *DataFlow {
	for i := range t.DataFlows {
		if t.DataFlows[i].FromStageID == fromStageID && t.DataFlows[i].ToStageID == toStageID {
			return &t.DataFlows[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the task. Observers receive clones so a
// snapshot can never be mutated after delivery.
func (t *Task) Clone() *Task {
	c := *t

	c.Stages = make([]Stage, len(t.Stages))
	copy(c.Stages, t.Stages)
	for i := range c.Stages {
		if t.Stages[i].StartTime != nil {
			st := *t.Stages[i].StartTime
			c.Stages[i].StartTime = &st
		}
		if t.Stages[i].EndTime != nil {
			et := *t.Stages[i].EndTime
			c.Stages[i].EndTime = &et
		}
		c.Stages[i].Logs = make([]StageLog, len(t.Stages[i].Logs))
		copy(c.Stages[i].Logs, t.Stages[i].Logs)
		if t.Stages[i].Metrics != nil {
			c.Stages[i].Metrics = make(map[string]string, len(t.Stages[i].Metrics))
			for k, v := range t.Stages[i].Metrics {
				c.Stages[i].Metrics[k] = v
			}
		}
	}

	c.DataFlows = make([]DataFlow, len(t.DataFlows))
	copy(c.DataFlows, t.DataFlows)

	c.Timeline = make([]TimelineEvent, len(t.Timeline))
	copy(c.Timeline, t.Timeline)

	if t.EstimatedEndTime != nil {
		eet := *t.EstimatedEndTime
		c.EstimatedEndTime = &eet
	}
	if t.Result != nil {
		res := *t.Result
		c.Result = &res
	}

	return &c
}
