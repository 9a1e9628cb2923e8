package stability

// Document is a JSON configuration file kept valid by the integrity check.
type Document struct {
	Name    string
	Default any
}

// The documents belong to the desktop dashboard. The integrity check keeps them
// valid for it; the engines read their settings from the daemon config only.
const (
	GUIDocumentName         = "gui_config.json"
	SupervisionDocumentName = "supervision_config.json"
	WebhookDocumentName     = "webhook_config.json"
)

type GUIDocument struct {
	Window      WindowSettings      `json:"window"`
	Theme       ThemeSettings       `json:"theme"`
	AutoRefresh AutoRefreshSettings `json:"auto_refresh"`
	Performance DisplayLimits       `json:"performance"`
}

type WindowSettings struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	MinWidth  int `json:"min_width"`
	MinHeight int `json:"min_height"`
}

type ThemeSettings struct {
	Name       string `json:"name"`
	FontFamily string `json:"font_family"`
	FontSize   int    `json:"font_size"`
}

type AutoRefreshSettings struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

type DisplayLimits struct {
	MaxLogLines  int  `json:"max_log_lines"`
	ChunkSize    int  `json:"chunk_size"`
	CacheEnabled bool `json:"cache_enabled"`
}

type SupervisionDocument struct {
	Processes []SupervisedProcess `json:"processes"`
	Intervals CheckIntervals      `json:"intervals"`
	Restart   RestartPolicy       `json:"restart"`
}

type SupervisedProcess struct {
	Name    string   `json:"name"`
	Match   string   `json:"match"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

type CheckIntervals struct {
	ProcessSeconds int `json:"process_seconds"`
	RepoSeconds    int `json:"repo_seconds"`
}

type RestartPolicy struct {
	MaxAttempts     int `json:"max_attempts"`
	CooldownSeconds int `json:"cooldown_seconds"`
}

type WebhookDocument struct {
	Webhooks      WebhookSettings `json:"webhooks"`
	MessageFormat MessageFormat   `json:"message_format"`
}

type WebhookSettings struct {
	Enabled        bool     `json:"enabled"`
	URLs           []string `json:"urls"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	RetryAttempts  int      `json:"retry_attempts"`
}

type MessageFormat struct {
	IncludeTimestamp  bool   `json:"include_timestamp"`
	IncludeSystemInfo bool   `json:"include_system_info"`
	Template          string `json:"template"`
}

// DefaultDocuments returns the built-in documents and the content used to heal them.
func DefaultDocuments() []Document {
	return []Document{
		{
			Name: GUIDocumentName,
			Default: GUIDocument{
				Window:      WindowSettings{Width: 1400, Height: 900, MinWidth: 1000, MinHeight: 700},
				Theme:       ThemeSettings{Name: "default", FontFamily: "TkDefaultFont", FontSize: 10},
				AutoRefresh: AutoRefreshSettings{Enabled: true, IntervalSeconds: 5},
				Performance: DisplayLimits{MaxLogLines: 1000, ChunkSize: 100, CacheEnabled: true},
			},
		},
		{
			Name: SupervisionDocumentName,
			Default: SupervisionDocument{
				Processes: []SupervisedProcess{},
				Intervals: CheckIntervals{ProcessSeconds: 30, RepoSeconds: 300},
				Restart:   RestartPolicy{MaxAttempts: 3, CooldownSeconds: 60},
			},
		},
		{
			Name: WebhookDocumentName,
			Default: WebhookDocument{
				Webhooks:      WebhookSettings{Enabled: false, URLs: []string{}, TimeoutSeconds: 10, RetryAttempts: 3},
				MessageFormat: MessageFormat{IncludeTimestamp: true, Template: "default"},
			},
		},
	}
}
