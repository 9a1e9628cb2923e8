package app

import (
	"context"
	"os"
	"time"

	"github.com/skillcoder/watchhamster/internal/infra/appstate"
	"github.com/skillcoder/watchhamster/internal/infra/pinger"
	"github.com/skillcoder/watchhamster/internal/infra/shutdown"
)

// appstater defines the interface for application state management
type appstater interface {
	RegisterPinger(pinger pinger.Pinger) error
	GetAllStats() map[string]*pinger.Statistics
	RegisterShutdowner(shutdowner shutdown.Shutdowner) error
	Quit() <-chan os.Signal
	SetStarting(ctx context.Context) error
	SetRunning(ctx context.Context) error
	SetTerminating(ctx context.Context) error
	GetStartTime() time.Time
	GetState() appstate.State
	GetUptime() time.Duration
	IsHealthy() bool
	IsReady() bool
	Shutdown(ctx context.Context) error
}

// component is a long running part of the daemon.
type component interface {
	Start(ctx context.Context) error
	shutdown.Shutdowner
}

type readier interface {
	Ready() <-chan struct{}
}
