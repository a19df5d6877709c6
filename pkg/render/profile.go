package render

import (
	"encoding/json"
	"fmt"
	"time"

	"mathbot/pkg/config"
)

const mib = 1024 * 1024

// Profile is the set of OS ceilings applied to a toolchain child before it reads the document.
// Zero fields are left unlimited, except CoreBytes which is always applied.
type Profile struct {
	CoreBytes      uint64        `json:"core"`
	CPUSeconds     uint64        `json:"cpu,omitempty"`
	DataBytes      uint64        `json:"data,omitempty"`
	StackBytes     uint64        `json:"stack,omitempty"`
	FileBytes      uint64        `json:"fsize,omitempty"`
	OpenFiles      uint64        `json:"nofile,omitempty"`
	MsgQueueBytes  uint64        `json:"msgqueue,omitempty"`
	RealtimeMicros uint64        `json:"rttime,omitempty"`
	Nice           int           `json:"nice,omitempty"`
	WallClock      time.Duration `json:"wall_clock,omitempty"`
}

// DefaultProfile returns the limits the bot ships with.
func DefaultProfile() Profile {
	return ProfileFromConfig(config.Default().Renderer.Sandbox)
}

// ProfileFromConfig converts the sandbox config section into a Profile.
func ProfileFromConfig(cfg config.SandboxConfig) Profile {
	return Profile{
		CoreBytes:      0,
		CPUSeconds:     nonNegative(cfg.CPUSeconds),
		DataBytes:      nonNegative(cfg.DataMiB) * mib,
		StackBytes:     nonNegative(cfg.StackMiB) * mib,
		FileBytes:      nonNegative(cfg.FileMiB) * mib,
		OpenFiles:      nonNegative(cfg.OpenFiles),
		MsgQueueBytes:  nonNegative(cfg.MsgQueueBytes),
		RealtimeMicros: 1,
		Nice:           cfg.Nice,
		WallClock:      time.Duration(cfg.WallClockSeconds) * time.Second,
	}
}

// Encode serializes the profile for the sandbox-exec helper's --profile flag.
func (p Profile) Encode() string {
	data, err := json.Marshal(p)
	if err != nil {
		// Profile has only scalar fields.
		panic(fmt.Sprintf("encode sandbox profile: %v", err))
	}

	return string(data)
}

// DecodeProfile parses a profile produced by Encode.
func DecodeProfile(raw string) (Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, fmt.Errorf("decode sandbox profile: %w", err)
	}
	if p.Nice < 0 || p.Nice > 19 {
		return Profile{}, fmt.Errorf("sandbox nice must be within 0..19, got %d", p.Nice)
	}

	return p, nil
}

func nonNegative(value int) uint64 {
	if value < 0 {
		return 0
	}

	return uint64(value)
}
