package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ConnectorService   = (*Service)(nil)
	_ OAuthStateStore    = (*MemoryOAuthStateStore)(nil)
	_ ExpiredStatePurger = (*MemoryOAuthStateStore)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
