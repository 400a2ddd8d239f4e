// Package runner drives the process lifecycle: banner, start hooks, a
// blocking run phase, and a bounded drain on shutdown.
package runner

import (
	"bytes"
	"context"
	"os"

	"github.com/dimiro1/banner"
)

// State is the process lifecycle position.
type State int32

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Runner blocks in Run until the context cancels or Stop is called.
type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks bracket the run phase. A failing OnStart aborts the run and
// still drains whatever came up.
type Hooks struct {
	OnStart func() error
	OnStop  func()
}

// Drainer finishes in-flight sessions before shutdown completes.
type Drainer interface {
	Drain() error
}

const Version = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"COMPANION\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
