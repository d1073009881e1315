package config

// TapConfig represents the configuration for the traffic tap
type TapConfig struct {
	Mode            string
	ListenAddress   string
	Upstream        string
	CapturePatterns []string
	BlockedDomains  []string
	MaxCaptureBytes int
}

// StateConfig represents the configuration for the state store
type StateConfig struct {
	Backend    string
	SQLitePath string
	MySQLDSN   string
	BadgerDir  string
}

// SMTPConfig represents the configuration for SMTP notifications
type SMTPConfig struct {
	Address       string
	From          string
	To            string
	OnSuccess     bool
	SubjectPrefix string
}

// NotifyConfig represents the configuration for delivery notifications
type NotifyConfig struct {
	Backend string
	SMTP    SMTPConfig
}

// GetTap returns the tap configuration
func (c *Config) GetTap() TapConfig {
	return TapConfig{
		Mode:            c.GetString("tap.mode"),
		ListenAddress:   c.GetString("tap.listen_address"),
		Upstream:        c.GetString("tap.upstream"),
		CapturePatterns: c.GetStringSlice("tap.capture_patterns"),
		BlockedDomains:  c.GetStringSlice("tap.blocked_domains"),
		MaxCaptureBytes: c.GetInt("tap.max_capture_bytes"),
	}
}

// GetState returns the state store configuration
func (c *Config) GetState() StateConfig {
	return StateConfig{
		Backend:    c.GetString("state.backend"),
		SQLitePath: c.GetString("state.sqlite_path"),
		MySQLDSN:   c.GetString("state.mysql_dsn"),
		BadgerDir:  c.GetString("state.badger_dir"),
	}
}

// GetNotify returns the notification configuration
func (c *Config) GetNotify() NotifyConfig {
	return NotifyConfig{
		Backend: c.GetString("notify.backend"),
		SMTP: SMTPConfig{
			Address:       c.GetString("notify.smtp.address"),
			From:          c.GetString("notify.smtp.from"),
			To:            c.GetString("notify.smtp.to"),
			OnSuccess:     c.GetBool("notify.smtp.on_success"),
			SubjectPrefix: c.GetString("notify.smtp.subject_prefix"),
		},
	}
}
