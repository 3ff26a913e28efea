package bus

// Well-known channel names. "system", "cron", and "heartbeat" are internal
// origins that never correspond to a registered chat adapter.
const (
	ChannelTelegram  = "telegram"
	ChannelSlack     = "slack"
	ChannelWhatsApp  = "whatsapp"
	ChannelCLI       = "cli"
	ChannelCron      = "cron"
	ChannelHeartbeat = "heartbeat"
	ChannelSystem    = "system"
)
