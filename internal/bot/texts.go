package bot

const (
	textHelp = `I can remind you to send the hourly email during your shift.

/subscribe - register and open the subscription form
/shift HH:MM HH:MM - set the shift hours on the open form
/unsubscribe - stop the reminders
/listsubs - list everyone who gets reminded
/clean - remove my messages from this chat`

	textFormReceived    = "Form received!"
	textFormPrompt      = "Please fill out the subscription form."
	textFormMissing     = "No open subscription form. Send /subscribe first."
	textNotSubscribed   = "You were not subscribed ..."
	textShiftUsage      = "Usage: /shift HH:MM HH:MM (shift start and end, 24h clock)"
	textSubscribeFirst  = "Send /subscribe first."
	textNothingToClean  = "Nothing to clean up here."
	textNoSubscribers   = "Nobody is subscribed yet."
	textCallbackSaved   = "Saved"
	textCallbackDone    = "Cancelled"
	textBroadcastFormat = "Broadcast message requested by %s"
	textPingSentFormat  = "Ping sent to %d users."
	textAddedFormat     = "I've added you, %s"
	textRemovedFormat   = "I have removed you %s - %s"
)
