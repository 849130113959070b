// Package save reads and writes the persisted game state: one JSON header
// line followed by a zstd-compressed JSON body. The body is plain JSON
// (not gob) so saves survive field additions; Migrate defaults anything a
// newer build expects that an older save lacks.
package save

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const CurrentVersion = 1

type Header struct {
	Version int    `json:"version"`
	SaveID  string `json:"save_id"`
	Hours   uint64 `json:"hours"`
}

type SaveV1 struct {
	Header Header `json:"header"`

	RoleKey string `json:"role_key"`

	Money      int `json:"money"`
	Debt       int `json:"debt"`
	Reputation int `json:"reputation"`
	Stage      int `json:"stage"`

	Demand float64 `json:"demand"`

	Seconds   uint64 `json:"seconds"`
	Hours     uint64 `json:"hours"`
	DayCount  uint64 `json:"day_count"`
	HourOfDay int    `json:"hour_of_day"`

	RNGSeed  uint32 `json:"rng_seed"`
	RNGState uint32 `json:"rng_state"`

	ShockDay   uint64  `json:"shock_day"`
	ShockValue float64 `json:"shock_value"`
	ShockSet   bool    `json:"shock_set"`

	Unlocked map[string]bool `json:"unlocked"`

	Item      *ItemV1      `json:"item,omitempty"`
	Shipments []ShipmentV1 `json:"shipments,omitempty"`

	CompetitorPressure float64 `json:"competitor_pressure"`
	DryStreak          int     `json:"dry_streak"`
	Helper             bool    `json:"helper,omitempty"`
	RepGainBonus       int     `json:"rep_gain_bonus,omitempty"`

	Served     int `json:"served"`
	GoodServed int `json:"good_served"`
	BadServed  int `json:"bad_served"`

	OverdueDays int `json:"overdue_days"`

	LogLines []string `json:"log_lines"`
	Notice   NoticeV1 `json:"notice"`
	Talk     *TalkV1  `json:"pending_talk,omitempty"`

	GameOver       bool   `json:"game_over,omitempty"`
	GameOverReason string `json:"game_over_reason,omitempty"`
}

type ItemV1 struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	UnitCost int    `json:"unit_cost"`
	Price    int    `json:"price"`
	Stock    int    `json:"stock"`
	Discount int    `json:"discount,omitempty"`
}

type ShipmentV1 struct {
	Qty          int    `json:"qty"`
	ArrivesHours uint64 `json:"arrives_hours"`
}

type NoticeV1 struct {
	Text     string `json:"text,omitempty"`
	Severity string `json:"severity,omitempty"`
}

type TalkV1 struct {
	Prompt    string   `json:"prompt"`
	Options   []string `json:"options"`
	RepDeltas []int    `json:"rep_deltas"`
}

// Migrate defaults the fields a save written by an older build would not
// carry. Loading never fails on a missing field; it fails only on corrupt
// encoding.
func Migrate(s *SaveV1, hoursPerDay int) {
	if hoursPerDay <= 0 {
		hoursPerDay = 24
	}
	if s.Header.Version == 0 {
		s.Header.Version = CurrentVersion
	}
	if s.Demand == 0 {
		s.Demand = 1.0
	}
	if s.CompetitorPressure == 0 {
		s.CompetitorPressure = 1.0
	}
	if s.Unlocked == nil {
		s.Unlocked = map[string]bool{}
	}
	s.Unlocked["cart"] = true
	if s.RNGSeed == 0 {
		s.RNGSeed = 1
	}
	if s.RNGState == 0 {
		s.RNGState = s.RNGSeed
	}
	// Rebuild derived time counters; older saves stored only hours.
	s.DayCount = s.Hours / uint64(hoursPerDay)
	s.HourOfDay = int(s.Hours % uint64(hoursPerDay))
	if s.LogLines == nil {
		s.LogLines = []string{}
	}
}

// Write lands the save through a temp file and a rename, so a crash or
// a full disk mid-write never leaves a truncated .save.zst where Latest
// would pick it up. Flush and close errors are real write failures and
// are returned, not swallowed.
func Write(path string, s SaveV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeBody(f, s); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func writeBody(f *os.File, s SaveV1) error {
	hb, _ := json.Marshal(s.Header)
	if _, err := f.Write(append(hb, '\n')); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	if err := json.NewEncoder(bw).Encode(&s); err != nil {
		enc.Close()
		return fmt.Errorf("save encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func Read(path string, hoursPerDay int) (SaveV1, error) {
	var s SaveV1
	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64*1024)
	// Header line is uncompressed so tools can identify a save without
	// decompressing it; the body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return s, fmt.Errorf("save header: %w", err)
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return s, err
	}
	defer dec.Close()

	if err := json.NewDecoder(dec).Decode(&s); err != nil {
		return s, fmt.Errorf("save decode: %w", err)
	}
	Migrate(&s, hoursPerDay)
	return s, nil
}

// Latest returns the newest save file under dir (by hours in the file
// name), or "" when none exist.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestHours uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".save.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".save.zst")
		hours, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || hours >= bestHours {
			bestHours = hours
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// PathFor builds the canonical save path for a save id at a given hour.
func PathFor(dataDir, saveID string, hours uint64) string {
	return filepath.Join(dataDir, "saves", saveID, fmt.Sprintf("%d.save.zst", hours))
}
