package session

import (
	"errors"
	"fmt"
	"strconv"

	"ask/internal/chat"
)

// Mode is the active interaction mode of a chat session.
type Mode string

const (
	ModeChat        Mode = "chat"
	ModeShell       Mode = "shell"
	ModeSSH         Mode = "ssh"
	ModeTaskDefine  Mode = "task_define"
	ModeTaskPlan    Mode = "task_plan"
	ModeTaskIterate Mode = "task_iterate"
)

// IsTask reports whether m is one of the task authoring modes.
func (m Mode) IsTask() bool {
	switch m {
	case ModeTaskDefine, ModeTaskPlan, ModeTaskIterate:
		return true
	}
	return false
}

// Label is the short name shown in the turn separator.
func (m Mode) Label() string {
	switch m {
	case ModeTaskDefine:
		return "task:define"
	case ModeTaskPlan:
		return "task:plan"
	case ModeTaskIterate:
		return "task:iterate"
	default:
		return string(m)
	}
}

const DefaultSSHPort = 22

// RemoteConfig describes the remote host of an SSH session.
type RemoteConfig struct {
	Host       string
	Username   string
	Port       int
	SystemInfo string
}

// ConnName renders user@host:port.
func (r RemoteConfig) ConnName() string {
	port := r.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return r.Username + "@" + r.Host + ":" + strconv.Itoa(port)
}

// State 聊天会话的全部可变状态，由调度循环独占
// State is all mutable session state; the dispatcher loop owns it exclusively
type State struct {
	Mode     Mode
	Messages []chat.Message
	Remote   *RemoteConfig

	// TaskThread is the private authoring conversation; empty outside task modes.
	TaskThread []chat.Message
	TaskSlug   string
}

func New() *State {
	return &State{Mode: ModeChat}
}

// Append adds messages to the main history.
func (s *State) Append(msgs ...chat.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// EnterTask starts task authoring for slug with the given seed thread.
func (s *State) EnterTask(slug string, seed []chat.Message) {
	s.Mode = ModeTaskDefine
	s.TaskSlug = slug
	s.TaskThread = chat.Clone(seed)
}

// ExitTask ends task authoring and returns to chat.
func (s *State) ExitTask() {
	s.Mode = ModeChat
	s.TaskSlug = ""
	s.TaskThread = nil
}

// Disconnect drops the remote descriptor and returns to chat.
func (s *State) Disconnect() {
	s.Remote = nil
	if s.Mode == ModeSSH {
		s.Mode = ModeChat
	}
}

var (
	ErrThreadOutsideTask = errors.New("task thread present outside task mode")
	ErrSSHWithoutRemote  = errors.New("ssh mode without remote descriptor")
)

// Validate 检查状态不变量
// Validate checks the state invariants
func (s *State) Validate() error {
	if !s.Mode.IsTask() && (len(s.TaskThread) > 0 || s.TaskSlug != "") {
		return fmt.Errorf("mode %s: %w", s.Mode, ErrThreadOutsideTask)
	}
	if s.Mode == ModeSSH && s.Remote == nil {
		return ErrSSHWithoutRemote
	}
	return nil
}
