package modules

import (
	"github.com/iota-uz/bothub/modules/bot"
	"github.com/iota-uz/bothub/modules/conversation"
	"github.com/iota-uz/bothub/modules/core"
	"github.com/iota-uz/bothub/modules/playground"
	"github.com/iota-uz/bothub/modules/telegram"
	"github.com/iota-uz/bothub/pkg/application"
	"github.com/iota-uz/bothub/pkg/configuration"
)

// BuiltInModules lists the modules in dependency order. The telegram module
// is left out when no API credentials are configured.
func BuiltInModules(conf *configuration.Configuration) []application.Module {
	mods := []application.Module{
		core.NewModule(),
		bot.NewModule(&bot.ModuleOptions{
			CacheTTL: conf.Redis.BotCacheTTL,
		}),
		conversation.NewModule(),
		playground.NewModule(&playground.ModuleOptions{
			AllowedOrigins:  conf.Origins(),
			MaxMessageSize:  conf.Playground.MaxMessageSize,
			FramesPerMinute: conf.Playground.FramesPerMinute,
			ReadTimeout:     conf.Playground.ReadTimeout,
		}),
	}
	if conf.Telegram.Enabled() {
		mods = append(mods, telegram.NewModule(&telegram.ModuleOptions{
			AppID:         conf.Telegram.AppID,
			AppHash:       conf.Telegram.AppHash,
			ResumeOnStart: conf.Telegram.ResumeOnStart,
		}))
	}
	return mods
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
