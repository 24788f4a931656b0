package config

import "github.com/spf13/viper"

const (
	defaultTickRate = 90 // Hz

	defaultGrabThreshold    = 0.6
	defaultTriggerThreshold = 0.65
	defaultScrollingSpeed   = 0.6
	defaultScrollInterval   = 100 // ms
	defaultClickFreeze      = 300 // ms

	defaultCaptureFPS = 60
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("tick_rate", defaultTickRate)

	v.SetDefault("interaction.grab_threshold", defaultGrabThreshold)
	v.SetDefault("interaction.trigger_threshold", defaultTriggerThreshold)
	v.SetDefault("interaction.scrolling_speed", defaultScrollingSpeed)
	v.SetDefault("interaction.scroll_interval_ms", defaultScrollInterval)
	v.SetDefault("interaction.click_freeze_time_ms", defaultClickFreeze)
	v.SetDefault("interaction.resize_rate", 1.0)
	v.SetDefault("interaction.min_panel_width", 0.1)
	v.SetDefault("interaction.max_panel_width", 10.0)
	v.SetDefault("interaction.backhand_angle_deg", 30.0)
	v.SetDefault("interaction.desktop_view_scale", 1.0)

	v.SetDefault("keyboard.enabled", true)
	v.SetDefault("keyboard.sound_enabled", true)
	v.SetDefault("keyboard.volume", 0.3)
	v.SetDefault("keyboard.scale", 1.0)
	v.SetDefault("keyboard.layout", "")

	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.scale", 1.0)

	v.SetDefault("capture.fps", defaultCaptureFPS)
	v.SetDefault("capture.max_texture_width", 3840)
	v.SetDefault("capture.max_texture_height", 2160)
	v.SetDefault("capture.texture_budget", 0)

	v.SetDefault("screens", []map[string]any{{"name": "pattern", "source": "pattern", "width": 1920, "height": 1080}})

	v.SetDefault("input.backend", "uinput")
	v.SetDefault("input.device", "/dev/uinput")
	v.SetDefault("input.display", ":0")
	v.SetDefault("input.remote_url", "")
	v.SetDefault("input.remote_token", "")
	v.SetDefault("input.queue_depth", 64)
	v.SetDefault("input.failure_threshold", 5)
	v.SetDefault("input.retry_interval_ms", 1000)

	v.SetDefault("pose.listen", "127.0.0.1:47800")
	v.SetDefault("pose.lost_after_ms", 2000)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.addr", "127.0.0.1:8790")
	v.SetDefault("status.token", "")
	v.SetDefault("status.tls", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
