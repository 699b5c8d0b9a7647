package amqp

import (
	"encoding/json"
	"time"
)

// MonthlyDataChangedMessage announces that a (budget, month) document moved to
// a new version. It carries only identifiers; consumers fetch the document
// from storage so the feed never delivers stale figures.
type MonthlyDataChangedMessage struct {
	BudgetID  string    `json:"budget_id"`
	Month     string    `json:"month"` // YYYY-MM
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMonthlyDataChangedMessage(budgetID, month string, version int64) *MonthlyDataChangedMessage {
	return &MonthlyDataChangedMessage{
		BudgetID:  budgetID,
		Month:     month,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

func (m *MonthlyDataChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MonthlyDataChangedMessageFromJSON(data []byte) (*MonthlyDataChangedMessage, error) {
	var m MonthlyDataChangedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
