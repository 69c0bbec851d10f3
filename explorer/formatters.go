package explorer

import (
	"strings"

	"wagerchain/core/events"
	"wagerchain/core/types"
)

// Label returns the human readable summary shown next to an indexed event.
func Label(evt *types.Event) string {
	token := strings.ToUpper(strings.TrimSpace(evt.Attr("token")))
	switch evt.Type {
	case events.TypeBetCreated:
		return "Bet opened for " + amountLabel(evt.Attr("stake"), token)
	case events.TypeBetAccepted:
		return "Bet accepted, " + amountLabel(evt.Attr("custody"), token) + " in custody"
	case events.TypeBetResolved:
		return "Winner declared"
	case events.TypeBetSettled:
		return "Paid out " + amountLabel(evt.Attr("payout"), token)
	case events.TypeBetCancelled:
		return "Bet cancelled, refunded " + amountLabel(evt.Attr("refund"), token)
	case events.TypeBetExpired:
		return "Bet expired, refunded " + amountLabel(evt.Attr("refund"), token)
	case events.TypeLedgerDeposited:
		return "Deposited " + amountLabel(evt.Attr("amount"), token)
	case events.TypeLedgerWithdrawn:
		return "Withdrew " + amountLabel(evt.Attr("amount"), token)
	case events.TypeUserRegistered:
		return "Registered " + evt.Attr("username")
	}
	return evt.Type
}

func amountLabel(amount, token string) string {
	if amount == "" {
		amount = "0"
	}
	if token == "" {
		return amount
	}
	return amount + " " + token
}
