package webhook

import "github.com/skillcoder/watchhamster/internal/logic/alert"

// message is the Dooray incoming webhook body.
type message struct {
	BotName      string       `json:"botName"`
	BotIconImage string       `json:"botIconImage,omitempty"`
	Text         string       `json:"text"`
	Attachments  []attachment `json:"attachments"`
}

type attachment struct {
	Color string `json:"color"`
	Text  string `json:"text"`
}

func toMessage(botName, iconURL string, event alert.Event) message {
	return message{
		BotName:      botName,
		BotIconImage: iconURL,
		Text:         event.Title,
		Attachments: []attachment{
			{Color: event.Severity.Color(), Text: event.Body},
		},
	}
}
