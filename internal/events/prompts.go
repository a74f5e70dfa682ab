package events

import (
	"fmt"

	"github.com/antoniostano/switchboard/internal/call"
)

// Prompts supplies the spoken text for call-control actions. The dialogue
// engine owns the real wording; StaticPrompts is the fallback used when none
// is wired in.
type Prompts interface {
	Hello(c *call.Call) string
	WelcomeBack(c *call.Call) string
	Goodbye(c *call.Call) string
	TransferFailure(c *call.Call) string
	IVRLanguage(c *call.Call) string
}

// StaticPrompts returns fixed English prompts built from the call
// configuration.
type StaticPrompts struct{}

func (StaticPrompts) Hello(c *call.Call) string {
	return fmt.Sprintf("Hello, I am %s. How can I help you today?", c.Initiate.BotName)
}

func (StaticPrompts) WelcomeBack(c *call.Call) string {
	return fmt.Sprintf("Welcome back! I am %s. Where were we?", c.Initiate.BotName)
}

func (StaticPrompts) Goodbye(c *call.Call) string {
	return "I have not heard anything for a while, so I will hang up now. Goodbye."
}

func (StaticPrompts) TransferFailure(c *call.Call) string {
	return "I could not reach an agent right now. Let us continue together."
}

func (StaticPrompts) IVRLanguage(c *call.Call) string {
	return "To continue, please select your language."
}
