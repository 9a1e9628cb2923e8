package httpserver

import (
	"context"
	"time"

	"github.com/skillcoder/watchhamster/internal/infra/appstate"
	"github.com/skillcoder/watchhamster/internal/infra/pinger"
	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/stability"
	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

// appstater is an internal interface for application state management
type appstater interface {
	GetState() appstate.State
	IsHealthy() bool
	IsReady() bool
	GetUptime() time.Duration
	GetStartTime() time.Time
	GetAllStats() map[string]*pinger.Statistics
}

type alertPipeline interface {
	Submit(ctx context.Context, event alert.Event) (string, error)
	Stats() delivery.Stats
	Failed() []delivery.FailedDelivery
	ClearFailed() int
}

type healthSampler interface {
	Snapshot() (supervisor.Snapshot, bool)
	SampleOnce(ctx context.Context) (supervisor.Snapshot, error)
}

type stabilityManager interface {
	ValidateConfigs(ctx context.Context) []stability.Finding
	CheckSelfHealth(ctx context.Context) stability.SelfHealthSnapshot
}
