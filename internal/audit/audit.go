package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Event is one structured audit line for a balance-affecting operation.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Account   string    `json:"account"`
	Amount    int       `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// LogLedger records a committed balance mutation.
func (a *Logger) LogLedger(eventType, account string, amount int, details any) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Account:   account,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   details,
	})
}

// LogError records a failed ledger operation.
func (a *Logger) LogError(eventType, account string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Account:   account,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
