package types

// ---- Add-on state payloads (published under addons/<addon>/...) ----

// CreditValue is published retained under addons/<addon>/credits.
type CreditValue struct {
	Count uint8 `json:"count"`
}

// AnimationValue is published retained under addons/<addon>/leds/<channel>.
type AnimationValue struct {
	Type  string `json:"type"`
	Speed uint16 `json:"speed_ms"`
	Mask  uint8  `json:"mask"`
}

// BrightnessValue is published under addons/<addon>/brightness/<channel>.
type BrightnessValue struct {
	Level   uint8 `json:"level"`   // 0..255
	Percent uint8 `json:"percent"` // 0..100
	Saved   bool  `json:"saved,omitempty"`
}

// RelayValue is published under addons/<addon>/relay/<line>.
type RelayValue struct {
	Pin    int  `json:"pin"`
	Active bool `json:"active"`
	High   bool `json:"high"`
}

// PulseValue is published under addons/<addon>/pulse/<output> when a pulse starts.
type PulseValue struct {
	Pin        int    `json:"pin"`
	DurationMs uint32 `json:"duration_ms"`
}

// PowerValue is published retained under addons/<addon>/power.
type PowerValue struct {
	On bool `json:"on"`
}

// I2CCommandValue is published under addons/<addon>/i2c/<address>.
type I2CCommandValue struct {
	Address uint8  `json:"address"`
	Data    uint32 `json:"data"`
	Error   string `json:"error,omitempty"`
}

// HeartbeatValue is published under status/heartbeat.
type HeartbeatValue struct {
	Seq      uint32 `json:"seq"`
	UptimeMs int64  `json:"uptime_ms"`
	Addons   int    `json:"addons"`
}
