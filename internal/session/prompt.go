package session

import (
	"fmt"
	"strings"

	"github.com/spicebay/voicegate/internal/menu"
)

// TransferPhrase is the literal token the agent emits in its speech
// transcript to request escalation to a human. The transcript is scanned for
// it on every completed turn.
const TransferPhrase = "TRANSFER_TO_HUMAN"

// greetingTrigger is the injected user turn that makes the agent speak
// first. The caller never hears or says this text.
const greetingTrigger = "The call has just connected. Greet the caller and ask for their order."

// BuildInstructions renders the system prompt for one call: persona, menu,
// tool usage rules, and the escalation protocol.
func BuildInstructions(restaurantName string, m *menu.PriceMap, transferEnabled bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the phone order assistant for %s, a South Indian restaurant. ", restaurantName)
	b.WriteString("You take pickup orders over the phone. Be warm, brief, and clear; the caller is on a phone line, so keep every reply to one or two short sentences.\n\n")

	b.WriteString("RULES\n")
	b.WriteString("- Only offer items from the menu below. Never invent items or prices.\n")
	b.WriteString("- When the caller asks about an item, use the searchMenu tool to confirm its exact name and price before quoting it.\n")
	b.WriteString("- Use the manageOrder tool for every change to the order. Adding an item that is already in the order replaces its quantity, so just state the new quantity.\n")
	b.WriteString("- Before finishing, collect the caller's name and phone number with the collectCustomerDetails tool.\n")
	b.WriteString("- Read the full order back, including the total with tax, and get an explicit yes before calling completeOrder.\n")
	b.WriteString("- After completeOrder succeeds, read the order number back slowly, digit by digit, and tell the caller their pickup time is about 20 minutes.\n")
	if transferEnabled {
		b.WriteString("- If the caller asks for a human, a manager, or has a request you cannot handle, say you are connecting them and include the exact text " + TransferPhrase + " in your reply. Do not use that text for any other reason.\n")
	} else {
		b.WriteString("- If the caller has a request you cannot handle, apologize and suggest they call back during staffed hours.\n")
	}
	b.WriteString("\n")

	b.WriteString("MENU\n")
	b.WriteString(m.Render())

	return b.String()
}
