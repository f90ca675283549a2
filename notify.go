package main

import (
	"github.com/slack-go/slack"
)

// newSlackClient returns nil when no token is configured; callers treat a
// nil client as notifications disabled.
func newSlackClient(cfg Config) *slack.Client {
	if cfg.SlackToken == "" {
		return nil
	}
	return slack.New(cfg.SlackToken, slack.OptionHTTPClient(externalHTTPClient))
}

// NotifyConversion posts a watch-pass summary to the configured channel.
func NotifyConversion(api *slack.Client, channelID, summary string) error {
	if api == nil || channelID == "" {
		return nil
	}
	_, _, err := api.PostMessage(channelID, slack.MsgOptionText(summary, false))
	return err
}
