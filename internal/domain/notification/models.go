package notification

import (
	"fmt"
	"strings"
)

// Notification categories
const (
	CategoryAccounts     = "accounts"
	CategoryPayments     = "payments"
	CategoryTransactions = "transactions"
	CategoryGeneral      = "general"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	UserID   int64
	Kind     string
	Category string
	Title    string
	Body     string
	Data     map[string]string
}

type template struct {
	category string
	title    string
	body     func(p map[string]string) string
}

// Templates keyed by kind. Payload keys are filled in by the emitter.
var templates = map[string]template{
	"recurring.executed": {
		category: CategoryTransactions,
		title:    "Recurring transaction recorded",
		body: func(p map[string]string) string {
			return fmt.Sprintf("%s %s %s on %s", describe(p), p["amount"], p["currency"], p["date"])
		},
	},
	"recurring.completed": {
		category: CategoryTransactions,
		title:    "Recurring transaction finished",
		body: func(p map[string]string) string {
			return fmt.Sprintf("%s %s %s recorded on %s was the last occurrence", describe(p), p["amount"], p["currency"], p["date"])
		},
	},
	"payment.due_soon": {
		category: CategoryPayments,
		title:    "Card payment due soon",
		body: func(p map[string]string) string {
			return fmt.Sprintf("Payment #%s of %s %s is due on %s", p["paymentNumber"], p["amount"], p["currency"], p["dueDate"])
		},
	},
	"autopayoff.paid": {
		category: CategoryAccounts,
		title:    "Credit card paid off",
		body: func(p map[string]string) string {
			return fmt.Sprintf("%s %s was transferred from your linked account", p["amount"], p["currency"])
		},
	},
	"autopayoff.skipped": {
		category: CategoryAccounts,
		title:    "Credit card payoff skipped",
		body: func(p map[string]string) string {
			return "Automatic payoff did not run: " + p["reason"]
		},
	},
}

func describe(p map[string]string) string {
	if d := strings.TrimSpace(p["description"]); d != "" {
		return d + ":"
	}
	return strings.ToLower(p["type"]) + ":"
}

// Render builds the message for kind. Unknown kinds get a generic message
// so new emitters never fail delivery.
func Render(userID int64, kind string, payload map[string]string) Message {
	data := make(map[string]string, len(payload)+2)
	for k, v := range payload {
		data[k] = v
	}
	data["kind"] = kind

	tpl, ok := templates[kind]
	if !ok {
		tpl = template{
			category: CategoryGeneral,
			title:    "Account activity",
			body:     func(map[string]string) string { return kind },
		}
	}
	if _, ok := data["route"]; !ok {
		data["route"] = tpl.category
	}

	return Message{
		UserID:   userID,
		Kind:     kind,
		Category: tpl.category,
		Title:    tpl.title,
		Body:     tpl.body(payload),
		Data:     data,
	}
}
