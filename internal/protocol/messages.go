package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	Role            string `json:"role,omitempty"`
	ResumeToken     string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	ResumeToken     string        `json:"resume_token"`
	Params          SessionParams `json:"params"`
	CatalogDigest   string        `json:"catalog_digest"`
}

type SessionParams struct {
	Role        string `json:"role"`
	SaveID      string `json:"save_id"`
	HoursPerDay int    `json:"hours_per_day"`
	Seed        uint32 `json:"seed"`
	Resumed     bool   `json:"resumed,omitempty"`
}

// CATALOG (server -> client): the role's item table.
type CatalogMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Name            string      `json:"name"`
	Digest          string      `json:"digest"`
	Data            interface{} `json:"data"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ID              string    `json:"id,omitempty"`
	Action          string    `json:"action"`
	Params          ActParams `json:"params,omitempty"`
}

// ActParams carries the inputs older builds collected through blocking
// dialogs. Every action reads at most a couple of these.
type ActParams struct {
	Item   string `json:"item,omitempty"`
	Price  int    `json:"price,omitempty"`
	Qty    int    `json:"qty,omitempty"`
	Amount int    `json:"amount,omitempty"`
	Option int    `json:"option,omitempty"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Hours           uint64 `json:"hours,omitempty"`
}

// STATE (server -> client): the full read-only view after a tick or action.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	View            View   `json:"view"`
}

type View struct {
	Role      string `json:"role"`
	Money     int    `json:"money"`
	Debt      int    `json:"debt"`
	Rep       int    `json:"reputation"`
	Stage     int    `json:"stage"`
	StageName string `json:"stage_name"`

	Demand     float64 `json:"demand"`
	Shock      float64 `json:"demand_shock"`
	Season     int     `json:"season"`
	SeasonName string  `json:"season_name"`

	Seconds   uint64 `json:"seconds"`
	Hours     uint64 `json:"hours"`
	DayCount  uint64 `json:"day_count"`
	HourOfDay int    `json:"hour_of_day"`

	Served     int `json:"served"`
	GoodServed int `json:"good_served"`
	BadServed  int `json:"bad_served"`

	Unlocked map[string]bool `json:"unlocked"`

	Item      *ItemView      `json:"item,omitempty"`
	Shipments []ShipmentView `json:"shipments,omitempty"`

	CompetitorOpen     bool    `json:"competitor_open,omitempty"`
	CompetitorPressure float64 `json:"competitor_pressure,omitempty"`

	LogLines    []string     `json:"log_lines"`
	Notice      *NoticeView  `json:"notice,omitempty"`
	PendingTalk *TalkView    `json:"pending_talk,omitempty"`
	Actions     []ActionView `json:"actions"`
	Story       string       `json:"story,omitempty"`
	Ascii       *AsciiView   `json:"ascii,omitempty"`

	GameOver bool `json:"game_over,omitempty"`
}

type ItemView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	UnitCost int    `json:"unit_cost"`
	Price    int    `json:"price"`
	Stock    int    `json:"stock"`
	Discount int    `json:"discount,omitempty"`
}

type ShipmentView struct {
	Qty          int    `json:"qty"`
	ArrivesHours uint64 `json:"arrives_hours"`
}

type NoticeView struct {
	Text     string `json:"text"`
	Severity string `json:"severity"`
}

type TalkView struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type ActionView struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Hours   int    `json:"hours"`
	Enabled bool   `json:"enabled"`
	Tooltip string `json:"tooltip,omitempty"`
}

type AsciiView struct {
	Art     string `json:"art"`
	Caption string `json:"caption,omitempty"`
}
